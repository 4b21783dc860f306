package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"txdecoder/internal/model"
)

// ParityTrace is one element of a trace_transaction response.
type ParityTrace struct {
	Action       ParityAction  `json:"action"`
	Result       *ParityResult `json:"result"`
	Error        string        `json:"error,omitempty"`
	Subtraces    int           `json:"subtraces"`
	TraceAddress []int         `json:"traceAddress"`
	Type         string        `json:"type"`
}

// ParityAction covers the call, create, suicide and reward action shapes.
type ParityAction struct {
	CallType      string        `json:"callType,omitempty"`
	From          string        `json:"from,omitempty"`
	To            string        `json:"to,omitempty"`
	Value         *hexutil.Big  `json:"value,omitempty"`
	Input         hexutil.Bytes `json:"input,omitempty"`
	Init          hexutil.Bytes `json:"init,omitempty"`
	Address       string        `json:"address,omitempty"`
	RefundAddress string        `json:"refundAddress,omitempty"`
	Balance       *hexutil.Big  `json:"balance,omitempty"`
	Author        string        `json:"author,omitempty"`
	RewardType    string        `json:"rewardType,omitempty"`
}

type ParityResult struct {
	Output  hexutil.Bytes `json:"output,omitempty"`
	Address string        `json:"address,omitempty"`
	Code    hexutil.Bytes `json:"code,omitempty"`
}

// CallFrame is a node of the geth callTracer output.
type CallFrame struct {
	Type    string        `json:"type"`
	From    string        `json:"from"`
	To      string        `json:"to"`
	Value   *hexutil.Big  `json:"value,omitempty"`
	Input   hexutil.Bytes `json:"input"`
	Output  hexutil.Bytes `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Calls   []*CallFrame  `json:"calls,omitempty"`
}

func bigOf(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}

// NormalizeParity converts trace_transaction frames into trace entries.
func NormalizeParity(frames []ParityTrace) []model.TraceEntry {
	out := make([]model.TraceEntry, 0, len(frames))
	for _, f := range frames {
		e := model.TraceEntry{
			Type:         strings.ToLower(f.Type),
			Error:        f.Error,
			Subtraces:    f.Subtraces,
			TraceAddress: append([]int{}, f.TraceAddress...),
		}
		switch e.Type {
		case model.TraceCall:
			e.CallType = strings.ToLower(f.Action.CallType)
			e.From = strings.ToLower(f.Action.From)
			e.To = strings.ToLower(f.Action.To)
			e.Value = bigOf(f.Action.Value)
			e.Input = f.Action.Input
			if f.Result != nil {
				e.Output = f.Result.Output
			}
		case model.TraceCreate:
			e.From = strings.ToLower(f.Action.From)
			e.Value = bigOf(f.Action.Value)
			e.Input = f.Action.Init
			if f.Result != nil {
				e.To = strings.ToLower(f.Result.Address)
			}
		case model.TraceSuicide:
			e.From = strings.ToLower(f.Action.Address)
			e.To = strings.ToLower(f.Action.RefundAddress)
			e.Value = bigOf(f.Action.Balance)
		case model.TraceReward:
			e.To = strings.ToLower(f.Action.Author)
			e.Value = bigOf(f.Action.Value)
		}
		out = append(out, e)
	}
	return out
}

// NormalizeCallFrame flattens a callTracer tree depth first, assigning trace addresses.
func NormalizeCallFrame(root *CallFrame) []model.TraceEntry {
	var out []model.TraceEntry
	flattenCallFrame(root, []int{}, &out)
	return out
}

func flattenCallFrame(frame *CallFrame, traceAddr []int, out *[]model.TraceEntry) {
	e := model.TraceEntry{
		From:         strings.ToLower(frame.From),
		To:           strings.ToLower(frame.To),
		Value:        bigOf(frame.Value),
		Input:        frame.Input,
		Output:       frame.Output,
		Error:        frame.Error,
		Subtraces:    len(frame.Calls),
		TraceAddress: append([]int{}, traceAddr...),
	}
	switch t := strings.ToLower(frame.Type); t {
	case "create", "create2":
		e.Type = model.TraceCreate
		e.Output = nil
	case "selfdestruct", "suicide":
		e.Type = model.TraceSuicide
	default:
		e.Type = model.TraceCall
		e.CallType = t
	}
	*out = append(*out, e)

	for i, child := range frame.Calls {
		childAddr := append(append([]int{}, traceAddr...), i)
		flattenCallFrame(child, childAddr, out)
	}
}
