package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// envMappings binds configuration keys to their environment variables.
var envMappings = map[string]string{
	"rpc_addr":                      "RPC_ADDR",
	"network.name":                  "NETWORK",
	"operator.account_id":           "OPERATOR_ACCOUNT_ID",
	"operator.private_key":          "OPERATOR_PRIVATE_KEY",
	"vault.master_key":              "VAULT_MASTER_KEY",
	"storage.lighthouse_api_key":    "LIGHTHOUSE_API_KEY",
	"storage.lighthouse_upload_url": "LIGHTHOUSE_UPLOAD_URL",
	"storage.lighthouse_url":        "LIGHTHOUSE_URL",
	"storage.ipfs_url":              "IPFS_URL",
	"payment.facilitator_url":       "FACILITATOR_URL",
	"payment.pay_to":                "PAYMENT_PAY_TO",
	"payment.asset":                 "PAYMENT_ASSET",
	"payment.max_amount_required":   "PAYMENT_MAX_AMOUNT",
	"database.postgres_url":         "DATABASE_URL",
	"database.sqlite_path":          "SQLITE_PATH",
	"redis.url":                     "REDIS_URL",
	"server.jwt_secret":             "JWT_SECRET",
	"server.http_addr":              "HTTP_ADDR",
	"server.metrics_addr":           "METRICS_ADDR",
	"server.grpc_addr":              "GRPC_ADDR",
	"dev_mode":                      "DEV_MODE",
	"debug":                         "DEBUG",
}

// Load builds a Config from environment variables and an optional YAML file,
// then runs Validate. When path is empty the file custody_config.yaml is
// looked up in the working directory, ./config and $HOME/.snet-custody; a
// missing file is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, env := range envMappings {
		if err := v.BindEnv(key, env); err != nil {
			zap.L().Warn("failed to bind environment variable", zap.String("env", env), zap.String("key", key), zap.Error(err))
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("custody_config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.snet-custody")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		zap.L().Debug("config file not found, using environment variables and defaults")
	} else {
		zap.L().Info("using config file", zap.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zap.L().Debug("config loaded",
		zap.String("network", cfg.Network.Name),
		zap.String("rpc_addr", cfg.RPCAddr),
		zap.Bool("operator_configured", cfg.Operator.Configured()),
		zap.Bool("lighthouse_configured", cfg.Storage.LighthouseAPIKey != ""),
		zap.Bool("dev_mode", cfg.DevMode))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", Sepolia.Name)
	v.SetDefault("storage.ipfs_url", "http://127.0.0.1:5001")
	v.SetDefault("server.http_addr", ":8080")
}
