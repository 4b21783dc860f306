package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/config"
	"txdecoder/internal/decode"
	"txdecoder/internal/meta"
	"txdecoder/internal/metrics"
	"txdecoder/internal/proxy"
	"txdecoder/internal/resilience"
	"txdecoder/internal/sources"
	"txdecoder/internal/storage"
	"txdecoder/internal/storage/leveldb"
	"txdecoder/internal/storage/postgres"
	"txdecoder/internal/strategy"
)

// app is the wired decoder with everything it owns.
type app struct {
	decoder  *decode.Decoder
	registry *chain.Registry
	store    storage.Store
	metrics  *metrics.Metrics
}

func (a *app) Close() {
	a.registry.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("no chains configured: set chains in the config file or pass --rpc")
	}

	networks := make([]chain.Network, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		networks = append(networks, chain.Network{
			ChainID:      c.ID,
			RPCURL:       c.RPC,
			Trace:        chain.TraceMethod(c.Trace),
			NativeSymbol: c.NativeSymbol,
			NativeName:   c.NativeName,
		})
	}
	registry, err := chain.Dial(ctx, networks)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		registry.Close()
		return nil, err
	}

	m := metrics.New()
	breakerCfg := resilience.BreakerConfig{
		MaxFailures:      cfg.Breaker.MaxFailures,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		OnStateChange:    m.BreakerStateChanged,
	}
	poolCfg := resilience.PoolConfig{
		InitialConcurrency: cfg.Pool.InitialConcurrency,
		MaxConcurrency:     cfg.Pool.MaxConcurrency,
		Step:               cfg.Pool.Step,
		HealthThreshold:    cfg.Pool.HealthThreshold,
		Window:             cfg.Pool.Window,
		MinCalls:           cfg.Pool.MinCalls,
		OnAdjust:           m.PoolAdjusted,
	}
	exec := strategy.NewExecutor(strategy.ExecutorConfig{
		Timeout:    cfg.StrategyTimeout,
		Retries:    cfg.StrategyRetries,
		RetryDelay: cfg.RetryDelay,
	}, resilience.NewBreakers(breakerCfg, logger), resilience.NewRequestPool(poolCfg, logger), m, logger)

	client := &http.Client{Timeout: cfg.StrategyTimeout}
	resolver := proxy.NewResolver(registry, logger)

	abiStrategies, err := abiStrategySet(cfg, registry, client, logger)
	if err != nil {
		registry.Close()
		_ = store.Close()
		return nil, err
	}
	metaStrategies, err := metaStrategySet(cfg, registry, resolver)
	if err != nil {
		registry.Close()
		_ = store.Close()
		return nil, err
	}

	abis := abiloader.New(store, exec, abiStrategies, abiloader.Config{NotFoundTTL: cfg.NotFoundTTL}, logger)
	metas := meta.NewLoader(store, exec, metaStrategies, meta.Config{NotFoundTTL: cfg.NotFoundTTL}, logger)
	dec := decode.New(registry, registry, abis, metas, resolver, decode.Config{MaxDepth: cfg.MaxDepth}, m, logger)

	return &app{decoder: dec, registry: registry, store: store, metrics: m}, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.Migrate(migrateCtx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil
	case "leveldb":
		s, err := leveldb.Open(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func abiStrategySet(cfg config.Config, provider chain.Provider, client *http.Client, logger *zap.Logger) (abiloader.Strategies, error) {
	src := cfg.Sources
	known := map[string]abiloader.Strategy{
		"etherscan":  sources.NewEtherscan(src.EtherscanURL, src.EtherscanAPIKey, client, logger),
		"blockscout": sources.NewBlockscout(src.BlockscoutURLs, client, logger),
		"sourcify":   sources.NewSourcify(src.SourcifyURL, client, logger),
		"ipfs":       sources.NewIPFS(provider, src.IPFSGateway, client, logger),
		"openchain":  sources.NewOpenChain(src.OpenchainURL, client, logger),
		"4byte":      sources.NewFourByte(src.FourbyteURL, client, logger),
	}
	if src.EtherscanAPIKey == "" {
		logger.Warn("etherscan api key not set, requests will be rate limited")
	}

	var out abiloader.Strategies
	var err error
	if out.Default, err = pick(known, cfg.ABIStrategies); err != nil {
		return out, err
	}
	for _, c := range cfg.Chains {
		if len(c.ABIStrategies) == 0 {
			continue
		}
		list, err := pick(known, c.ABIStrategies)
		if err != nil {
			return out, fmt.Errorf("chain %d: %w", c.ID, err)
		}
		if out.PerChain == nil {
			out.PerChain = make(map[uint64][]abiloader.Strategy)
		}
		out.PerChain[c.ID] = list
	}
	return out, nil
}

func metaStrategySet(cfg config.Config, provider chain.Provider, resolver *proxy.Resolver) (meta.Strategies, error) {
	known := map[string]meta.Strategy{
		"rpc-erc20": meta.NewERC20(provider),
		"rpc-nft":   meta.NewNFT(provider),
		"rpc-proxy": meta.NewProxy(resolver),
	}

	var out meta.Strategies
	var err error
	if out.Default, err = pick(known, cfg.MetaStrategies); err != nil {
		return out, err
	}
	for _, c := range cfg.Chains {
		if len(c.MetaStrategies) == 0 {
			continue
		}
		list, err := pick(known, c.MetaStrategies)
		if err != nil {
			return out, fmt.Errorf("chain %d: %w", c.ID, err)
		}
		if out.PerChain == nil {
			out.PerChain = make(map[uint64][]meta.Strategy)
		}
		out.PerChain[c.ID] = list
	}
	return out, nil
}

// pick returns the named strategies in order.
func pick[S any](known map[string]S, ids []string) ([]S, error) {
	out := make([]S, 0, len(ids))
	for _, id := range ids {
		s, ok := known[id]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}
