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
	"github.com/spf13/cobra"

	"txdecoder/internal/config"
)

func runCalldata(cmd *cobra.Command, _ []string) error {
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
	to, _ := cmd.Flags().GetString("to")
	rawData, _ := cmd.Flags().GetString("data")
	if !common.IsHexAddress(to) {
		return fmt.Errorf("--to must be a hex address")
	}
	data, err := hexutil.Decode(rawData)
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.decoder.DecodeCalldata(ctx, chainID, common.HexToAddress(to), data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
