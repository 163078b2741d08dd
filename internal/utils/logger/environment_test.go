package logger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("Logger Environment", func() {
	type expectation struct {
		level             zapcore.Level
		development       bool
		disableCaller     bool
		disableStacktrace bool
		encoding          string
		outputs           []string
		errorOutputs      []string
	}

	DescribeTable("per-environment zap configuration",
		func(build func() zap.Config, want expectation) {
			cfg := build()

			Expect(cfg.Level.Level()).To(Equal(want.level))
			Expect(cfg.Development).To(Equal(want.development))
			Expect(cfg.DisableCaller).To(Equal(want.disableCaller))
			Expect(cfg.DisableStacktrace).To(Equal(want.disableStacktrace))
			Expect(cfg.Encoding).To(Equal(want.encoding))
			if want.outputs == nil {
				Expect(cfg.OutputPaths).To(BeEmpty())
				Expect(cfg.ErrorOutputPaths).To(BeEmpty())
			} else {
				Expect(cfg.OutputPaths).To(Equal(want.outputs))
				Expect(cfg.ErrorOutputPaths).To(Equal(want.errorOutputs))
			}
		},
		Entry("production", newProductionLoggerConfig, expectation{
			level: zap.InfoLevel, encoding: "json",
			outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("staging", newStagingLoggerConfig, expectation{
			level: zap.InfoLevel, disableCaller: true, disableStacktrace: true, encoding: "json",
			outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("development", newDevelopmentLoggerConfig, expectation{
			level: zap.DebugLevel, development: true, disableCaller: true, disableStacktrace: true, encoding: "console",
			outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("test", newTestLoggerConfig, expectation{
			level: zap.InfoLevel, encoding: "json",
		}),
	)

	It("should stamp json entries with an ISO8601 timestamp key", func() {
		Expect(newProductionLoggerConfig().EncoderConfig.TimeKey).To(Equal("timestamp"))
		Expect(newTestLoggerConfig().EncoderConfig.TimeKey).To(Equal("timestamp"))
	})
})
