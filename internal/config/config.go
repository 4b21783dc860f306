package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ChainConfig describes one network and its per chain strategy overrides.
type ChainConfig struct {
	ID             uint64   `mapstructure:"id"`
	RPC            string   `mapstructure:"rpc"`
	Trace          string   `mapstructure:"trace"`
	NativeSymbol   string   `mapstructure:"native-symbol"`
	NativeName     string   `mapstructure:"native-name"`
	ABIStrategies  []string `mapstructure:"abi-strategies"`
	MetaStrategies []string `mapstructure:"meta-strategies"`
}

type BreakerConfig struct {
	MaxFailures      int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

type PoolConfig struct {
	InitialConcurrency int
	MaxConcurrency     int
	Step               int
	HealthThreshold    float64
	Window             int
	MinCalls           int
}

// SourceConfig holds the endpoints of the external ABI sources.
type SourceConfig struct {
	EtherscanAPIKey string
	EtherscanURL    string
	BlockscoutURLs  map[uint64]string
	SourcifyURL     string
	OpenchainURL    string
	FourbyteURL     string
	IPFSGateway     string
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chains          []ChainConfig
	Sources         SourceConfig
	ABIStrategies   []string
	MetaStrategies  []string
	Breaker         BreakerConfig
	Pool            PoolConfig
	StrategyTimeout time.Duration
	StrategyRetries int
	RetryDelay      time.Duration
	Store           string
	PGDSN           string
	LevelDBPath     string
	NotFoundTTL     time.Duration
	MaxDepth        int
	Listen          string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TXDECODER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("trace", "none")
	v.SetDefault("etherscan-url", "https://api.etherscan.io/v2/api")
	v.SetDefault("sourcify-url", "https://sourcify.dev/server")
	v.SetDefault("openchain-url", "https://api.openchain.xyz")
	v.SetDefault("fourbyte-url", "https://www.4byte.directory")
	v.SetDefault("ipfs-gateway", "https://ipfs.io/ipfs")
	v.SetDefault("abi-strategies", []string{"etherscan", "sourcify", "blockscout", "ipfs", "openchain", "4byte"})
	v.SetDefault("meta-strategies", []string{"rpc-erc20", "rpc-nft", "rpc-proxy"})
	v.SetDefault("breaker.max-failures", 5)
	v.SetDefault("breaker.reset-timeout", 60*time.Second)
	v.SetDefault("breaker.half-open-max-calls", 3)
	v.SetDefault("pool.initial-concurrency", 10)
	v.SetDefault("pool.max-concurrency", 50)
	v.SetDefault("pool.step", 2)
	v.SetDefault("pool.health-threshold", 0.8)
	v.SetDefault("pool.window", 100)
	v.SetDefault("pool.min-calls", 10)
	v.SetDefault("strategy-timeout", 30*time.Second)
	v.SetDefault("strategy-retries", 2)
	v.SetDefault("retry-delay", time.Second)
	v.SetDefault("store", "memory")
	v.SetDefault("leveldb-path", "./data/cache")
	v.SetDefault("not-found-ttl", 24*time.Hour)
	v.SetDefault("max-depth", 8)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chains, err := loadChains(v)
	if err != nil {
		return Config{}, err
	}
	blockscout, err := getChainMap(v, "blockscout-urls")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Chains: chains,
		Sources: SourceConfig{
			EtherscanAPIKey: v.GetString("etherscan-api-key"),
			EtherscanURL:    v.GetString("etherscan-url"),
			BlockscoutURLs:  blockscout,
			SourcifyURL:     v.GetString("sourcify-url"),
			OpenchainURL:    v.GetString("openchain-url"),
			FourbyteURL:     v.GetString("fourbyte-url"),
			IPFSGateway:     v.GetString("ipfs-gateway"),
		},
		ABIStrategies:  getStringSlice(v, "abi-strategies"),
		MetaStrategies: getStringSlice(v, "meta-strategies"),
		Breaker: BreakerConfig{
			MaxFailures:      v.GetInt("breaker.max-failures"),
			ResetTimeout:     v.GetDuration("breaker.reset-timeout"),
			HalfOpenMaxCalls: v.GetInt("breaker.half-open-max-calls"),
		},
		Pool: PoolConfig{
			InitialConcurrency: v.GetInt("pool.initial-concurrency"),
			MaxConcurrency:     v.GetInt("pool.max-concurrency"),
			Step:               v.GetInt("pool.step"),
			HealthThreshold:    v.GetFloat64("pool.health-threshold"),
			Window:             v.GetInt("pool.window"),
			MinCalls:           v.GetInt("pool.min-calls"),
		},
		StrategyTimeout: v.GetDuration("strategy-timeout"),
		StrategyRetries: v.GetInt("strategy-retries"),
		RetryDelay:      v.GetDuration("retry-delay"),
		Store:           strings.ToLower(v.GetString("store")),
		PGDSN:           v.GetString("pg-dsn"),
		LevelDBPath:     v.GetString("leveldb-path"),
		NotFoundTTL:     v.GetDuration("not-found-ttl"),
		MaxDepth:        v.GetInt("max-depth"),
		Listen:          v.GetString("listen"),
		LogLevel:        v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case "memory", "leveldb":
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("store postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ID == 0 || ch.RPC == "" {
			return fmt.Errorf("chain entries need id and rpc")
		}
		if _, ok := seen[ch.ID]; ok {
			return fmt.Errorf("chain %d configured twice", ch.ID)
		}
		seen[ch.ID] = struct{}{}
		switch ch.Trace {
		case "", "none", "trace_transaction", "debug_traceTransaction":
		default:
			return fmt.Errorf("chain %d: unknown trace method %q", ch.ID, ch.Trace)
		}
	}
	return nil
}

// loadChains reads the chains list, falling back to a single chain built
// from the rpc, chain-id and trace keys.
func loadChains(v *viper.Viper) ([]ChainConfig, error) {
	var chains []ChainConfig
	if v.IsSet("chains") {
		if err := v.UnmarshalKey("chains", &chains); err != nil {
			return nil, fmt.Errorf("parse chains: %w", err)
		}
	}
	if len(chains) == 0 && v.GetString("rpc") != "" {
		chains = append(chains, ChainConfig{
			ID:    v.GetUint64("chain-id"),
			RPC:   v.GetString("rpc"),
			Trace: v.GetString("trace"),
		})
	}
	for i := range chains {
		if chains[i].NativeSymbol == "" {
			chains[i].NativeSymbol, chains[i].NativeName = defaultNative(chains[i].ID)
		}
		chains[i].ABIStrategies = cleanStrings(chains[i].ABIStrategies)
		chains[i].MetaStrategies = cleanStrings(chains[i].MetaStrategies)
	}
	return chains, nil
}

func defaultNative(chainID uint64) (string, string) {
	switch chainID {
	case 56:
		return "BNB", "BNB"
	case 137:
		return "POL", "Polygon Ecosystem Token"
	case 100:
		return "xDAI", "xDAI"
	case 43114:
		return "AVAX", "Avalanche"
	default:
		return "ETH", "Ether"
	}
}

func getChainMap(v *viper.Viper, key string) (map[uint64]string, error) {
	raw := getStringMap(v, key)
	out := make(map[uint64]string, len(raw))
	for k, val := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid chain id %q", key, k)
		}
		out[id] = val
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
