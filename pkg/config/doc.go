// Package config provides configuration management for the custody service.
//
// The Config structure controls network selection, the RPC endpoint, the
// operator fallback signer, the vault master key, payload storage backends,
// the payment facilitator, persistence and timeouts.
//
// # Basic Configuration
//
// The minimum required configuration needs an RPC endpoint:
//
//	cfg := &config.Config{
//		RPCAddr: "https://sepolia.infura.io/v3/YOUR_PROJECT_ID",
//		Network: config.Sepolia,
//		Vault:   config.Vault{MasterKey: os.Getenv("VAULT_MASTER_KEY")},
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// # Networks
//
// Three predefined networks are available and selected by name with
// NetworkByName:
//
//	config.Main    - "main"    (ChainID: 1)
//	config.Sepolia - "test"    (ChainID: 11155111)
//	config.Holesky - "preview" (ChainID: 17000)
//
// # Loading From the Environment
//
// Load reads the variables below and an optional custody_config.yaml:
//
//	RPC_ADDR, NETWORK
//	OPERATOR_ACCOUNT_ID, OPERATOR_PRIVATE_KEY
//	VAULT_MASTER_KEY
//	LIGHTHOUSE_API_KEY, LIGHTHOUSE_UPLOAD_URL, LIGHTHOUSE_URL, IPFS_URL
//	FACILITATOR_URL, PAYMENT_PAY_TO, PAYMENT_ASSET, PAYMENT_MAX_AMOUNT
//	DATABASE_URL, SQLITE_PATH, REDIS_URL
//	JWT_SECRET, HTTP_ADDR, METRICS_ADDR
//	DEV_MODE, DEBUG
//
// Secrets (master key, private keys, API keys, connection strings) carry a
// `json:"-"` tag so that a marshalled Config never leaks them.
//
// # Timeouts
//
// Zero values in Timeouts are replaced with defaults via WithDefaults().
//
// # Thread Safety
//
// Config instances should be created once and not modified after being passed
// to sdk.New. The Config is read-only during operations.
package config
