package logger

import (
	"bytes"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dwarvesf/paywall-backend/internal/types/environments"
)

type customWriteHook struct {
	called bool
}

func (h *customWriteHook) OnWrite(_ *zapcore.CheckedEntry, _ []zapcore.Field) {
	h.called = true
}

var _ = Describe("Logger", func() {
	var logger *Logger

	Describe("#New", func() {
		DescribeTable("builds a logger for each environment",
			func(env environments.Environment) {
				logger = New(env)
				Expect(logger).NotTo(BeNil())
				Expect(logger.wrappedLogger).NotTo(BeNil())
			},
			Entry("production", environments.Production),
			Entry("development", environments.Development),
			Entry("staging", environments.Staging),
			Entry("test", environments.Test),
		)

		It("should fall back to production settings when environment is unknown", func() {
			logger = New(environments.Environment("unknown"))
			Expect(logger).NotTo(BeNil())

			core := logger.wrappedLogger.Core()
			Expect(core.Enabled(zapcore.InfoLevel)).To(BeTrue())
			Expect(core.Enabled(zapcore.DebugLevel)).To(BeFalse())
		})
	})

	Describe("leveled methods", func() {
		var logs *observer.ObservedLogs

		BeforeEach(func() {
			var core zapcore.Core
			core, logs = observer.New(zapcore.DebugLevel)
			logger = &Logger{wrappedLogger: zap.New(core)}
		})

		It("should write entries at the matching level with fields", func() {
			logger.Debug("debug message", map[string]string{"key": "value"})
			logger.Info("info message", map[string]string{"key": "value"})
			logger.Warn("warn message")
			logger.Error("[Scanner][Scan]", map[string]string{"error": "boom"})

			entries := logs.All()
			Expect(entries).To(HaveLen(4))
			Expect(entries[0].Level).To(Equal(zapcore.DebugLevel))
			Expect(entries[1].Level).To(Equal(zapcore.InfoLevel))
			Expect(entries[2].Level).To(Equal(zapcore.WarnLevel))
			Expect(entries[2].Context).To(BeEmpty())
			Expect(entries[3].Level).To(Equal(zapcore.ErrorLevel))
			Expect(entries[3].ContextMap()).To(HaveKeyWithValue("error", "boom"))
		})

		It("should attach fields from #With to every entry", func() {
			child := logger.With(map[string]string{"chain": "POLYGON"})
			child.Info("scan started", map[string]string{"address": "0xabc"})

			entries := logs.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("chain", "POLYGON"))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("address", "0xabc"))
		})
	})

	Describe("#Fatal", func() {
		It("should run the fatal hook", func() {
			hook := &customWriteHook{}
			logger = &Logger{
				wrappedLogger: zap.New(
					zapcore.NewCore(
						zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
						zapcore.AddSync(&bytes.Buffer{}),
						zap.FatalLevel,
					),
					zap.WithFatalHook(hook),
				),
			}

			logger.Fatal("fatal message", map[string]string{"key": "value"})
			Expect(hook.called).To(BeTrue())
		})
	})

	Describe("#transformStrMapToFields", func() {
		It("should transform a string map to zap fields", func() {
			fields := transformStrMapToFields(map[string]string{
				"key1": "value1",
				"key2": "value2",
			})

			sort.Slice(fields, func(i, j int) bool {
				return fields[i].Key < fields[j].Key
			})

			Expect(fields).To(HaveLen(2))
			Expect(fields[0]).To(Equal(zap.String("key1", "value1")))
			Expect(fields[1]).To(Equal(zap.String("key2", "value2")))
		})

		It("should return an empty slice for an empty input map", func() {
			Expect(transformStrMapToFields(map[string]string{})).To(BeEmpty())
		})
	})
})
