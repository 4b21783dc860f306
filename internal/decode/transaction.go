package decode

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

// DecodeTransaction fetches a mined transaction with its receipt and trace and decodes it.
func (d *Decoder) DecodeTransaction(ctx context.Context, chainID uint64, hash common.Hash) (tx *model.DecodedTransaction, err error) {
	start := time.Now()
	defer func() { d.observe("transaction", err, start) }()

	reader, err := d.provider.Client(chainID)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With(zap.String("hash", hash.Hex()), zap.Uint64("chain_id", chainID))

	var (
		txn     *chain.Transaction
		receipt *types.Receipt
		trace   []model.TraceEntry
	)
	fetchErr := func(kind string, err error) error {
		return &FetchError{Hash: hash.Hex(), ChainID: chainID, Kind: kind, Err: err}
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		if txn, err = reader.TransactionByHash(ctx, hash); err != nil {
			return fetchErr(FetchTransaction, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if receipt, err = reader.TransactionReceipt(ctx, hash); err != nil {
			return fetchErr(FetchReceipt, err)
		}
		return nil
	})
	if reader.SupportsTrace() {
		g.Go(func() error {
			var err error
			if trace, err = reader.TraceTransaction(ctx, hash); err != nil {
				return fetchErr(FetchTrace, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	block := txn.BlockNumber
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	timestamp, err := reader.BlockTimestamp(ctx, block)
	if err != nil {
		return nil, fetchErr(FetchBlock, err)
	}

	if txn.Tx.To() == nil {
		return nil, &ContractCreationError{Hash: hash.Hex(), ChainID: chainID}
	}

	network := d.network(chainID)
	out := baseTransaction(hash, chainID, network, txn, receipt, block, timestamp)

	if len(txn.Tx.Data()) == 0 {
		d.nativeTransfer(out, network)
		return out, nil
	}

	d.contractInteraction(ctx, out, txn, receipt, trace, reader.SupportsTrace(), network, logger)
	return out, nil
}

func baseTransaction(hash common.Hash, chainID uint64, network chain.Network, txn *chain.Transaction, receipt *types.Receipt, blockNumber, timestamp uint64) *model.DecodedTransaction {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = txn.Tx.GasPrice()
	}
	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	fee := new(big.Int).Mul(gasUsed, price)

	return &model.DecodedTransaction{
		TxHash:            strings.ToLower(hash.Hex()),
		ChainID:           chainID,
		ChainSymbol:       network.NativeSymbol,
		BlockNumber:       blockNumber,
		Timestamp:         timestamp,
		From:              strings.ToLower(txn.From.Hex()),
		To:                strings.ToLower(txn.Tx.To().Hex()),
		Nonce:             txn.Tx.Nonce(),
		Value:             model.NewBigInt(txn.Tx.Value()),
		GasUsed:           model.NewBigInt(gasUsed),
		EffectiveGasPrice: model.NewBigInt(price),
		Fee:               model.NewBigInt(fee),
		Reverted:          receipt.Status == types.ReceiptStatusFailed,
		TraceCalls:        []model.DecodeResult{},
		Interactions:      []model.Interaction{},
		AssetsSent:        []model.Asset{},
		AssetsReceived:    []model.Asset{},
		Errors:            []model.DecodeFailure{},
	}
}

// nativeTransfer fills a plain value transfer without any ABI, log or trace work.
func (d *Decoder) nativeTransfer(out *model.DecodedTransaction, network chain.Network) {
	out.TxType = model.TxNativeTransfer
	decimals := nativeDecimals
	asset := model.Asset{
		Type:     model.AssetNative,
		Name:     network.NativeName,
		Symbol:   network.NativeSymbol,
		Decimals: &decimals,
		From:     out.From,
		To:       out.To,
		Amount:   FormatAmount(out.Value.Int, &decimals),
	}
	out.AssetsSent = []model.Asset{asset}
	if out.To == out.From {
		out.AssetsReceived = []model.Asset{asset}
	}
	set := newAddressSet()
	set.add(out.From)
	set.add(out.To)
	out.Addresses = set.list()
}

func (d *Decoder) contractInteraction(
	ctx context.Context,
	out *model.DecodedTransaction,
	txn *chain.Transaction,
	receipt *types.Receipt,
	trace []model.TraceEntry,
	traced bool,
	network chain.Network,
	logger *zap.Logger,
) {
	out.TxType = model.TxContractInteraction
	s := d.newSession(out.ChainID, logger)
	to := *txn.Tx.To()
	data := txn.Tx.Data()

	var (
		method    *model.DecodeResult
		methodErr error
		traceRes  TraceResult
		logs      []LogResult
		target    *model.ContractMeta
		targetErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		method, methodErr = s.decodeCall(ctx, to, data, 0)
		return nil
	})
	if traced {
		g.Go(func() error {
			traceRes = s.decodeTrace(ctx, trace, network)
			return nil
		})
	}
	g.Go(func() error {
		logs = s.decodeLogs(ctx, receipt.Logs)
		return nil
	})
	g.Go(func() error {
		target, targetErr = s.metaFor(ctx, to)
		return nil
	})
	_ = g.Wait()

	var failures []model.DecodeFailure
	if methodErr != nil {
		failures = append(failures, model.DecodeFailure{
			Stage:     model.StageMethod,
			Address:   out.To,
			Signature: hexutil.Encode(data[:min(4, len(data))]),
			Message:   methodErr.Error(),
		})
	}
	out.MethodCall = method

	if traceRes.Calls != nil {
		out.TraceCalls = traceRes.Calls
	}
	out.RevertReasons = traceRes.Reverts
	failures = append(failures, traceRes.Failures...)

	for _, l := range logs {
		if l.Err != nil {
			f := model.DecodeFailure{Stage: model.StageLog, Index: l.Index, Message: l.Err.Error()}
			f.Address, f.Signature = logIdentity(receipt.Logs, l.Index)
			failures = append(failures, f)
			continue
		}
		out.Interactions = append(out.Interactions, *l.Interaction)
	}

	if traced {
		out.Interactions = append(out.Interactions, traceRes.Natives...)
	} else if out.Value.Sign() > 0 && !out.Reverted {
		out.Interactions = append(out.Interactions, nativeInteraction(out.ChainID, network, model.TraceCall, out.From, out.To, out.Value.Int))
	}

	if targetErr == nil && target != nil {
		out.ToName = target.Name
		out.ToType = target.ContractType
	} else if targetErr != nil && !errors.Is(targetErr, strategy.ErrNotFound) {
		failures = append(failures, model.DecodeFailure{Stage: model.StageMeta, Address: out.To, Message: targetErr.Error()})
	}

	assets := ExtractAssets(out.Interactions)
	out.AssetsSent, out.AssetsReceived = SplitAssets(assets, out.From)
	out.Addresses = collectAddresses(out)

	sortFailures(failures)
	for _, f := range failures {
		logger.Warn("decode item failed",
			zap.String("stage", f.Stage),
			zap.Int("index", f.Index),
			zap.String("address", f.Address),
			zap.String("signature", f.Signature),
			zap.String("error", f.Message),
		)
	}
	out.Errors = append(out.Errors, failures...)
}

func logIdentity(logs []*types.Log, index int) (string, string) {
	for _, l := range logs {
		if int(l.Index) != index {
			continue
		}
		sig := ""
		if len(l.Topics) > 0 {
			sig = strings.ToLower(l.Topics[0].Hex())
		}
		return strings.ToLower(l.Address.Hex()), sig
	}
	return "", ""
}

var stageOrder = map[string]int{
	model.StageMethod: 0,
	model.StageTrace:  1,
	model.StageRevert: 2,
	model.StageLog:    3,
	model.StageMeta:   4,
}

func sortFailures(f []model.DecodeFailure) {
	sort.SliceStable(f, func(i, j int) bool {
		if stageOrder[f[i].Stage] != stageOrder[f[j].Stage] {
			return stageOrder[f[i].Stage] < stageOrder[f[j].Stage]
		}
		return f[i].Index < f[j].Index
	})
}

func collectAddresses(out *model.DecodedTransaction) []string {
	set := newAddressSet()
	set.add(out.From)
	set.add(out.To)
	if out.MethodCall != nil {
		set.addTree(out.MethodCall.Params)
	}
	for _, c := range out.TraceCalls {
		set.addTree(c.Params)
	}
	for _, it := range out.Interactions {
		set.addInteraction(it)
	}
	return set.list()
}
