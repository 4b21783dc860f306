package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cobra.OnInitialize(func() {
		_ = godotenv.Load()
	})

	root := &cobra.Command{
		Use:          "txdecoder",
		Short:        "Decode EVM transactions and calldata",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "RPC URL for a single chain setup")
	root.PersistentFlags().String("trace", "none", "trace method for --rpc (trace_transaction, debug_traceTransaction, none)")
	root.PersistentFlags().String("store", "memory", "abi and metadata cache (memory, postgres, leveldb)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("leveldb-path", "./data/cache", "LevelDB cache directory")
	root.PersistentFlags().String("etherscan-api-key", "", "Etherscan API key")
	root.PersistentFlags().Int("max-depth", 8, "maximum nested calldata depth")
	root.PersistentFlags().Duration("strategy-timeout", 30*time.Second, "timeout per strategy attempt")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Decode mined transactions",
		RunE:  runTx,
	}
	txCmd.Flags().Uint64("chain-id", 1, "chain id")
	txCmd.Flags().StringSlice("hash", nil, "transaction hashes (comma-separated)")
	txCmd.Flags().String("out", "", "append results to this JSONL file instead of stdout")
	root.AddCommand(txCmd)

	calldataCmd := &cobra.Command{
		Use:   "calldata",
		Short: "Decode calldata sent to a contract",
		RunE:  runCalldata,
	}
	calldataCmd.Flags().Uint64("chain-id", 1, "chain id")
	calldataCmd.Flags().String("to", "", "contract address")
	calldataCmd.Flags().String("data", "", "0x prefixed calldata")
	root.AddCommand(calldataCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decode HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().Uint64("chain-id", 1, "chain id for --rpc")
	serveCmd.Flags().String("listen", ":8080", "listen address")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
