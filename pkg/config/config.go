package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Purchase     PurchaseConfig
	Telemetry    TelemetryConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGERMART_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGERMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEDGERMART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LEDGERMART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LEDGERMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGERMART_DB_DSN"`
	Driver string `envconfig:"LEDGERMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGERMART_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGERMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGERMART_DB_USER"`
	LegacyPassword string `envconfig:"LEDGERMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGERMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGERMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGERMART_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"LEDGERMART_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGERMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGERMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the journal should be opened with the sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGERMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEDGERMART_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGERMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGERMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGERMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGERMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGERMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGERMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGERMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig describes the chain endpoint, the deployed contracts and the
// signer available to the wallet session.
type LedgerConfig struct {
	RPCURL             string        `envconfig:"LEDGERMART_LEDGER_RPC_URL" required:"true"`
	ChainID            int64         `envconfig:"LEDGERMART_LEDGER_CHAIN_ID" required:"true"`
	MarketplaceAddress string        `envconfig:"LEDGERMART_LEDGER_MARKETPLACE_ADDRESS" required:"true"`
	TokenAddress       string        `envconfig:"LEDGERMART_LEDGER_TOKEN_ADDRESS" required:"true"`
	TokenDecimals      int32         `envconfig:"LEDGERMART_LEDGER_TOKEN_DECIMALS" default:"18"`
	TokenSymbol        string        `envconfig:"LEDGERMART_LEDGER_TOKEN_SYMBOL" default:"cUSD"`
	ExplorerURL        string        `envconfig:"LEDGERMART_LEDGER_EXPLORER_URL"`
	SignerKey          string        `envconfig:"LEDGERMART_LEDGER_SIGNER_KEY"`
	KeystorePath       string        `envconfig:"LEDGERMART_LEDGER_KEYSTORE_PATH"`
	ConfirmTimeout     time.Duration `envconfig:"LEDGERMART_LEDGER_CONFIRM_TIMEOUT" default:"2m"`
	PollInterval       time.Duration `envconfig:"LEDGERMART_LEDGER_POLL_INTERVAL" default:"2s"`
	CallTimeout        time.Duration `envconfig:"LEDGERMART_LEDGER_CALL_TIMEOUT" default:"15s"`
}

// ExplorerAddressURL builds a block explorer link for the given address, or
// returns an empty string when no explorer is configured.
func (l LedgerConfig) ExplorerAddressURL(address string) string {
	base := strings.TrimRight(strings.TrimSpace(l.ExplorerURL), "/")
	if base == "" || address == "" {
		return ""
	}
	return base + "/address/" + address
}

func (l LedgerConfig) validate() error {
	if l.ChainID <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerChainID)
	}
	if l.TokenDecimals < 0 || l.TokenDecimals > 36 {
		return fmt.Errorf("%s out of range", EnvLedgerTokenDecimals)
	}
	if l.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerPollInterval)
	}
	return nil
}

type PurchaseConfig struct {
	DistributedGuard bool          `envconfig:"LEDGERMART_PURCHASE_DISTRIBUTED_GUARD" default:"false"`
	GuardTTL         time.Duration `envconfig:"LEDGERMART_PURCHASE_GUARD_TTL" default:"15m"`
	ItemCacheTTL     time.Duration `envconfig:"LEDGERMART_ITEM_CACHE_TTL" default:"30s"`
}

type TelemetryConfig struct {
	Enabled      bool   `envconfig:"LEDGERMART_OTEL_ENABLED" default:"true"`
	OTLPEndpoint string `envconfig:"LEDGERMART_OTEL_ENDPOINT"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEDGERMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEDGERMART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
