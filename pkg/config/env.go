package config

const (
	EnvPrefix = "LEDGERMART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:ledgermart.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv = "LEDGERMART_APP_ENV"
	EnvPort   = "LEDGERMART_APP_PORT"

	EnvDBDSN  = "LEDGERMART_DB_DSN"
	EnvDBHost = "LEDGERMART_DB_HOST"
	EnvDBUser = "LEDGERMART_DB_USER"
	EnvDBName = "LEDGERMART_DB_NAME"

	EnvRedisURL = "LEDGERMART_REDIS_URL"

	EnvLedgerRPCURL         = "LEDGERMART_LEDGER_RPC_URL"
	EnvLedgerChainID        = "LEDGERMART_LEDGER_CHAIN_ID"
	EnvLedgerMarketplace    = "LEDGERMART_LEDGER_MARKETPLACE_ADDRESS"
	EnvLedgerToken          = "LEDGERMART_LEDGER_TOKEN_ADDRESS"
	EnvLedgerTokenDecimals  = "LEDGERMART_LEDGER_TOKEN_DECIMALS"
	EnvLedgerPollInterval   = "LEDGERMART_LEDGER_POLL_INTERVAL"
	EnvLedgerConfirmTimeout = "LEDGERMART_LEDGER_CONFIRM_TIMEOUT"
	EnvLedgerExplorerURL    = "LEDGERMART_LEDGER_EXPLORER_URL"

	EnvUseSQLite = "LEDGERMART_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
