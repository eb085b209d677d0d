// Package config defines the runtime configuration for the custody service:
// ledger network and RPC endpoint, operator fallback credentials, the vault
// master key, payload storage backends, the payment facilitator, persistence
// and operation timeouts. It also provides validation and defaulting helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every setting needed to build the custody core.
// Use Validate to fill implicit defaults and to check for required fields.
type Config struct {
	// Network selects the target chain (chain ID and human-readable name).
	Network Network `json:"network" yaml:"network" mapstructure:"network"`
	// RPCAddr is the Ethereum RPC/WS endpoint URL (required).
	RPCAddr string `json:"rpc_addr" yaml:"rpc_addr" mapstructure:"rpc_addr"`
	// Operator holds the process-wide fallback signer. Optional.
	Operator Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	// Vault configures envelope encryption of stored credentials.
	Vault Vault `json:"vault" yaml:"vault" mapstructure:"vault"`
	// Storage configures the payload offload backends.
	Storage Storage `json:"storage" yaml:"storage" mapstructure:"storage"`
	// Payment configures the payment gate.
	Payment Payment `json:"payment" yaml:"payment" mapstructure:"payment"`
	// Database configures the credential repository.
	Database Database `json:"database" yaml:"database" mapstructure:"database"`
	// Redis configures the settlement ledger. Empty URL means in-memory.
	Redis Redis `json:"redis" yaml:"redis" mapstructure:"redis"`
	// Server configures the HTTP surface of the serve command.
	Server Server `json:"server" yaml:"server" mapstructure:"server"`
	// DevMode enables tool-testing behaviour that is unsafe in production,
	// such as returning generated private keys from account creation.
	DevMode bool `json:"dev_mode" yaml:"dev_mode" mapstructure:"dev_mode"`
	// Debug enables verbose logging.
	Debug bool `json:"debug" yaml:"debug" mapstructure:"debug"`
	// Timeouts configures per-operation timeouts. See Timeouts.WithDefaults for defaults.
	Timeouts Timeouts `json:"timeouts" yaml:"timeouts" mapstructure:"timeouts"`
}

// Network describes a blockchain network (chain ID and name). ChainID is used
// for EIP-155 signing; Name is one of "main", "test" or "preview".
type Network struct {
	ChainID string `json:"chain_id" mapstructure:"chain_id"`
	Name    string `json:"network_name" mapstructure:"name"`
}

// Sepolia is the predefined test network.
var Sepolia = Network{
	ChainID: "11155111",
	Name:    "test",
}

// Main is the predefined main network.
var Main = Network{
	ChainID: "1",
	Name:    "main",
}

// Holesky is the predefined preview network.
var Holesky = Network{
	ChainID: "17000",
	Name:    "preview",
}

// NetworkByName returns the predefined network for name ("main", "test",
// "preview" or the chain aliases "mainnet", "sepolia", "holesky").
func NetworkByName(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "main", "mainnet":
		return Main, nil
	case "test", "testnet", "sepolia", "":
		return Sepolia, nil
	case "preview", "previewnet", "holesky":
		return Holesky, nil
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

// Operator is the fallback signer used when a tenant has no credential.
type Operator struct {
	// AccountID is the hex address of the operator account.
	AccountID string `json:"account_id" yaml:"account_id" mapstructure:"account_id"`
	// PrivateKey is the hex-encoded ECDSA key (no 0x prefix).
	PrivateKey string `json:"-" yaml:"private_key" mapstructure:"private_key"`
}

// Configured reports whether both operator fields are set.
func (o Operator) Configured() bool {
	return o.AccountID != "" && o.PrivateKey != ""
}

// Vault holds the master key material. MasterKey is either 64 hex chars
// (used verbatim) or a passphrase stretched with PBKDF2.
type Vault struct {
	MasterKey string `json:"-" yaml:"master_key" mapstructure:"master_key"`
}

// Storage configures the primary (Lighthouse) and secondary (IPFS node)
// payload backends.
type Storage struct {
	// LighthouseAPIKey enables the primary backend when non-empty.
	LighthouseAPIKey string `json:"-" yaml:"lighthouse_api_key" mapstructure:"lighthouse_api_key"`
	// LighthouseUploadURL is the upload API endpoint.
	// Default: https://node.lighthouse.storage/api/v0/add
	LighthouseUploadURL string `json:"lighthouse_upload_url" yaml:"lighthouse_upload_url" mapstructure:"lighthouse_upload_url"`
	// LighthouseURL is the HTTP gateway used to fetch primary-backend content.
	// Default: https://gateway.lighthouse.storage/ipfs/
	LighthouseURL string `json:"lighthouse_url" yaml:"lighthouse_url" mapstructure:"lighthouse_url"`
	// IpfsURL is the HTTP RPC endpoint of the local IPFS node.
	// Default: http://127.0.0.1:5001
	IpfsURL string `json:"ipfs_url" yaml:"ipfs_url" mapstructure:"ipfs_url"`
}

// Payment configures the payment gate.
type Payment struct {
	// FacilitatorURL is the base URL of the facilitator (verify/settle).
	FacilitatorURL string `json:"facilitator_url" yaml:"facilitator_url" mapstructure:"facilitator_url"`
	// Network is the payment network name expected in requirements.
	Network string `json:"network" yaml:"network" mapstructure:"network"`
	// PayTo is the payee address for default requirements.
	PayTo string `json:"pay_to" yaml:"pay_to" mapstructure:"pay_to"`
	// Asset is the token accepted for default requirements.
	Asset string `json:"asset" yaml:"asset" mapstructure:"asset"`
	// MaxAmountRequired is the default price in smallest units.
	MaxAmountRequired string `json:"max_amount_required" yaml:"max_amount_required" mapstructure:"max_amount_required"`
}

// Database selects the credential repository. PostgresURL wins over
// SQLitePath; both empty selects the in-memory repository.
type Database struct {
	PostgresURL string `json:"-" yaml:"postgres_url" mapstructure:"postgres_url"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// Redis configures the settlement ledger.
type Redis struct {
	URL string `json:"-" yaml:"url" mapstructure:"url"`
	// KeyPrefix namespaces settlement keys. Default: "custody:settlement:".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	// SettlementTTL bounds how long settled markers are kept. Default: 30 days.
	SettlementTTL time.Duration `json:"settlement_ttl" yaml:"settlement_ttl" mapstructure:"settlement_ttl"`
}

// Server configures the serve command.
type Server struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr" mapstructure:"http_addr"`
	// MetricsAddr serves /metrics on its own listener. Empty mounts it on HTTPAddr.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" mapstructure:"metrics_addr"`
	// GRPCAddr enables the gRPC health endpoint. Empty disables it.
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr" mapstructure:"grpc_addr"`
	// JWTSecret verifies HS256 bearer tokens carrying the tenant id.
	JWTSecret string `json:"-" yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// Timeouts controls operation deadlines.
// Zero values will be replaced by sane defaults in WithDefaults.
type Timeouts struct {
	Dial          time.Duration `mapstructure:"dial"`           // RPC dial/connect
	ChainRead     time.Duration `mapstructure:"chain_read"`     // nonce, gas, chain id
	ChainSubmit   time.Duration `mapstructure:"chain_submit"`   // send tx
	ReceiptWait   time.Duration `mapstructure:"receipt_wait"`   // wait tx
	StorageUpload time.Duration `mapstructure:"storage_upload"` // per backend upload
	StorageFetch  time.Duration `mapstructure:"storage_fetch"`  // per backend fetch
	Facilitator   time.Duration `mapstructure:"facilitator"`    // verify/settle
	Database      time.Duration `mapstructure:"database"`       // credential reads/writes
}

// Validate normalizes the configuration by applying implicit defaults for
// storage URLs, network and redis settings, and verifies that RPCAddr is
// provided and that the operator credentials are either complete or absent.
func (c *Config) Validate() error {

	if c.Storage.LighthouseURL == "" {
		c.Storage.LighthouseURL = "https://gateway.lighthouse.storage/ipfs/"
	}

	if c.Storage.LighthouseUploadURL == "" {
		c.Storage.LighthouseUploadURL = "https://node.lighthouse.storage/api/v0/add"
	}

	if c.Storage.IpfsURL == "" {
		c.Storage.IpfsURL = "http://127.0.0.1:5001"
	}

	if c.Network.ChainID == "" {
		n, err := NetworkByName(c.Network.Name)
		if err != nil {
			return err
		}
		c.Network = n
	}

	if c.Payment.Network == "" {
		c.Payment.Network = c.Network.Name
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "custody:settlement:"
	}

	if c.Redis.SettlementTTL == 0 {
		c.Redis.SettlementTTL = 30 * 24 * time.Hour
	}

	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}

	if c.RPCAddr == "" {
		return errors.New("RPC address is required")
	}

	if (c.Operator.AccountID == "") != (c.Operator.PrivateKey == "") {
		return errors.New("operator account id and private key must be set together")
	}

	return nil
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Dial:          5s
//	ChainRead:     12s
//	ChainSubmit:   25s
//	ReceiptWait:   90s
//	StorageUpload: 30s
//	StorageFetch:  20s
//	Facilitator:   15s
//	Database:      5s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Dial == 0 {
		tt.Dial = 5 * time.Second
	}
	if tt.ChainRead == 0 {
		tt.ChainRead = 12 * time.Second
	}
	if tt.ChainSubmit == 0 {
		tt.ChainSubmit = 25 * time.Second
	}
	if tt.ReceiptWait == 0 {
		tt.ReceiptWait = 90 * time.Second
	}
	if tt.StorageUpload == 0 {
		tt.StorageUpload = 30 * time.Second
	}
	if tt.StorageFetch == 0 {
		tt.StorageFetch = 20 * time.Second
	}
	if tt.Facilitator == 0 {
		tt.Facilitator = 15 * time.Second
	}
	if tt.Database == 0 {
		tt.Database = 5 * time.Second
	}
	return tt
}
