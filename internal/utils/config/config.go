package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/types/environments"
)

type AppConfig struct {
	Environment      environments.Environment
	ApiServer        ApiServerConfig
	Postgres         DBConnection
	Redis            RedisConfig
	Wallet           WalletConfig
	Vault            VaultConfig
	Payment          PaymentConfig
	Chains           ChainsConfig
	RPC              RPCConfig
	Sweep            SweepConfig
	Notification     NotificationConfig
	AccessInviteLink string

	// env vars that were set but could not be parsed
	malformed []string
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WalletConfig struct {
	Mnemonic string
}

type VaultConfig struct {
	Address      string
	Role         string
	KVSecretPath string
	MnemonicKey  string
	TransitKey   string
	TokenPath    string
}

type PaymentConfig struct {
	MinAmount       decimal.Decimal
	ToleranceMargin decimal.Decimal
}

// ChainsConfig holds the raw registry inputs. The registry itself is built
// by chainregistry.Load.
type ChainsConfig struct {
	ConfigFile string
}

type RPCConfig struct {
	Timeout   time.Duration
	RateLimit float64
}

type SweepConfig struct {
	Schedule    string
	BatchSize   int
	Concurrency int
}

type NotificationConfig struct {
	PaidWebhookURL        string
	SweepUptimeWebhookURL string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	var malformed []string
	minAmount := envVarAsDecimal("MIN_PAYMENT_AMOUNT", decimal.RequireFromString("14.5"), &malformed)
	margin := envVarAsDecimal("PAYMENT_TOLERANCE", decimal.RequireFromString("0.1"), &malformed)

	return &AppConfig{
		Environment: environments.Environment(env),
		ApiServer: ApiServerConfig{
			Port:           envVarOrDefault("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: os.Getenv("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envVarAtoiOrDefault("REDIS_DB", 0),
		},
		Wallet: WalletConfig{
			Mnemonic: os.Getenv("HD_WALLET_MNEMONIC"),
		},
		Vault: VaultConfig{
			Address:      os.Getenv("VAULT_ADDR"),
			Role:         os.Getenv("VAULT_ROLE"),
			KVSecretPath: os.Getenv("VAULT_KV_SECRET_PATH"),
			MnemonicKey:  envVarOrDefault("VAULT_MNEMONIC_KEY", "hd_wallet_mnemonic"),
			TransitKey:   os.Getenv("VAULT_TRANSIT_KEY"),
			TokenPath:    envVarOrDefault("VAULT_SA_TOKEN_PATH", "/var/run/secrets/kubernetes.io/serviceaccount/token"),
		},
		Payment: PaymentConfig{
			MinAmount:       minAmount,
			ToleranceMargin: margin,
		},
		Chains: ChainsConfig{
			ConfigFile: os.Getenv("CHAINS_CONFIG_FILE"),
		},
		RPC: RPCConfig{
			Timeout:   envVarAsDuration("RPC_TIMEOUT", 15*time.Second),
			RateLimit: envVarAsFloat("RPC_RATE_LIMIT", 10),
		},
		Sweep: SweepConfig{
			Schedule:    os.Getenv("SWEEP_SCHEDULE"),
			BatchSize:   envVarAtoiOrDefault("SWEEP_BATCH_SIZE", 100),
			Concurrency: envVarAtoiOrDefault("SWEEP_CONCURRENCY", 4),
		},
		Notification: NotificationConfig{
			PaidWebhookURL:        os.Getenv("PAID_WEBHOOK_URL"),
			SweepUptimeWebhookURL: os.Getenv("SWEEP_UPTIME_WEBHOOK_URL"),
		},
		AccessInviteLink: os.Getenv("ACCESS_INVITE_LINK"),
		malformed:        malformed,
	}
}

// Validate checks the values that cannot be defaulted safely.
func (c *AppConfig) Validate() error {
	if len(c.malformed) > 0 {
		return errors.Wrapf(consts.ErrConfiguration, "malformed value for %s", strings.Join(c.malformed, ", "))
	}
	if c.Payment.MinAmount.Sign() <= 0 {
		return errors.Wrap(consts.ErrConfiguration, "MIN_PAYMENT_AMOUNT must be positive")
	}
	if c.Payment.ToleranceMargin.Sign() < 0 {
		return errors.Wrap(consts.ErrConfiguration, "PAYMENT_TOLERANCE must not be negative")
	}
	if c.Payment.ToleranceMargin.GreaterThanOrEqual(c.Payment.MinAmount) {
		return errors.Wrap(consts.ErrConfiguration, "PAYMENT_TOLERANCE must be below MIN_PAYMENT_AMOUNT")
	}
	if c.RPC.Timeout <= 0 {
		return errors.Wrap(consts.ErrConfiguration, "RPC_TIMEOUT must be positive")
	}
	if c.Wallet.Mnemonic == "" && c.Vault.Address == "" {
		return errors.Wrap(consts.ErrConfiguration, "either HD_WALLET_MNEMONIC or VAULT_ADDR must be set")
	}
	if c.Sweep.Schedule != "" && (c.Sweep.BatchSize <= 0 || c.Sweep.Concurrency <= 0) {
		return errors.Wrap(consts.ErrConfiguration, "SWEEP_BATCH_SIZE and SWEEP_CONCURRENCY must be positive")
	}
	return nil
}

func envVarOrDefault(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envVarAtoiOrDefault(envName string, fallback int) int {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}

	return value
}

func envVarAsFloat(envName string, fallback float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(envName), 64)
	if err != nil {
		return fallback
	}
	return value
}

func envVarAsDuration(envName string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envName))
	if err != nil {
		return fallback
	}
	return value
}

// envVarAsDecimal falls back only when the variable is unset. A value that
// does not parse is appended to malformed so Validate can reject it.
func envVarAsDecimal(envName string, fallback decimal.Decimal, malformed *[]string) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		return fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		*malformed = append(*malformed, envName)
		return fallback
	}
	return value
}
