package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txdecoder/internal/config"
	"txdecoder/internal/model"
	"txdecoder/internal/storage"
)

func runTx(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	chainID, _ := cmd.Flags().GetUint64("chain-id")
	rawHashes, _ := cmd.Flags().GetStringSlice("hash")
	out, _ := cmd.Flags().GetString("out")
	if len(rawHashes) == 0 {
		return fmt.Errorf("at least one --hash is required")
	}
	hashes := make([]common.Hash, 0, len(rawHashes))
	for _, h := range rawHashes {
		b, err := hexutil.Decode(h)
		if err != nil || len(b) != common.HashLength {
			return fmt.Errorf("invalid transaction hash %q", h)
		}
		hashes = append(hashes, common.BytesToHash(b))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runLogger := logger.With(zap.String("run_id", uuid.NewString()), zap.Uint64("chain_id", chainID))
	runLogger.Info("decode start", zap.Int("transactions", len(hashes)), zap.String("store", cfg.Store))

	var results []*model.DecodedTransaction
	var failed int
	for _, h := range hashes {
		tx, err := a.decoder.DecodeTransaction(ctx, chainID, h)
		if err != nil {
			failed++
			runLogger.Error("decode transaction failed", zap.String("hash", h.Hex()), zap.Error(err))
			continue
		}
		runLogger.Info("decoded transaction",
			zap.String("hash", tx.TxHash),
			zap.String("tx_type", string(tx.TxType)),
			zap.Int("interactions", len(tx.Interactions)),
			zap.Int("errors", len(tx.Errors)),
		)
		results = append(results, tx)
	}

	if out != "" {
		if err := storage.NewJsonlSink(out).PutTransactions(results); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, tx := range results {
			if err := enc.Encode(tx); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d transactions failed to decode", failed, len(hashes))
	}
	return nil
}
