package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Wallet struct {
		XPub string `yaml:"xpub"`
	} `yaml:"wallet"`
	Chain struct {
		ChainID          string   `yaml:"chain_id"`
		RPCEndpoints     []string `yaml:"rpc_endpoints"`
		WSEndpoints      []string `yaml:"ws_endpoints"`
		TokenContractID  string   `yaml:"token_contract_id"`
		MarketContractID string   `yaml:"market_contract_id"`
		Bech32Prefix     string   `yaml:"bech32_prefix"`
		GasLimit         int64    `yaml:"gas_limit"`
	} `yaml:"chain"`
	Checkout struct {
		StepTimeoutSeconds int64 `yaml:"step_timeout_seconds"`
		MaxStepRetries     int   `yaml:"max_step_retries"`
		BackoffBaseMillis  int64 `yaml:"backoff_base_millis"`
	} `yaml:"checkout"`
	Worker struct {
		IntervalSeconds      int64 `yaml:"interval_seconds"`
		RPCFailoverThreshold int   `yaml:"rpc_failover_threshold"`
		WSFailoverThreshold  int   `yaml:"ws_failover_threshold"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.ChainID == "" || len(cfg.Chain.RPCEndpoints) == 0 {
		return nil, errors.New("chain config is incomplete")
	}
	if cfg.Chain.TokenContractID == "" || cfg.Chain.MarketContractID == "" {
		return nil, errors.New("chain contract ids are required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Checkout.StepTimeoutSeconds <= 0 {
		cfg.Checkout.StepTimeoutSeconds = 30
	}
	if cfg.Checkout.MaxStepRetries <= 0 {
		cfg.Checkout.MaxStepRetries = 3
	}
	if cfg.Checkout.BackoffBaseMillis <= 0 {
		cfg.Checkout.BackoffBaseMillis = 500
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 15
	}
	if cfg.Chain.GasLimit <= 0 {
		cfg.Chain.GasLimit = 200000
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("WALLET_XPUB"); v != "" {
		cfg.Wallet.XPub = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.Chain.ChainID = v
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Chain.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("WS_ENDPOINTS"); v != "" {
		cfg.Chain.WSEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("TOKEN_CONTRACT_ID"); v != "" {
		cfg.Chain.TokenContractID = v
	}
	if v := os.Getenv("MARKET_CONTRACT_ID"); v != "" {
		cfg.Chain.MarketContractID = v
	}
	if v := os.Getenv("BECH32_PREFIX"); v != "" {
		cfg.Chain.Bech32Prefix = v
	}
	if v := os.Getenv("CHAIN_GAS_LIMIT"); v != "" {
		cfg.Chain.GasLimit = atoi64Or(cfg.Chain.GasLimit, v)
	}
	if v := os.Getenv("STEP_TIMEOUT_SECONDS"); v != "" {
		cfg.Checkout.StepTimeoutSeconds = atoi64Or(cfg.Checkout.StepTimeoutSeconds, v)
	}
	if v := os.Getenv("MAX_STEP_RETRIES"); v != "" {
		cfg.Checkout.MaxStepRetries = atoiOr(cfg.Checkout.MaxStepRetries, v)
	}
	if v := os.Getenv("BACKOFF_BASE_MILLIS"); v != "" {
		cfg.Checkout.BackoffBaseMillis = atoi64Or(cfg.Checkout.BackoffBaseMillis, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_RPC_FAILOVER_THRESHOLD"); v != "" {
		cfg.Worker.RPCFailoverThreshold = atoiOr(cfg.Worker.RPCFailoverThreshold, v)
	}
	if v := os.Getenv("WORKER_WS_FAILOVER_THRESHOLD"); v != "" {
		cfg.Worker.WSFailoverThreshold = atoiOr(cfg.Worker.WSFailoverThreshold, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
