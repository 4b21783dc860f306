package model

import "math/big"

// Trace entry kinds.
const (
	TraceCall    = "call"
	TraceCreate  = "create"
	TraceSuicide = "suicide"
	TraceReward  = "reward"
)

// TraceEntry is one frame of a transaction trace, normalized across trace APIs.
type TraceEntry struct {
	Type         string   `json:"type"`
	CallType     string   `json:"callType,omitempty"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Value        *big.Int `json:"value,omitempty"`
	Input        []byte   `json:"input,omitempty"`
	Output       []byte   `json:"output,omitempty"`
	Error        string   `json:"error,omitempty"`
	TraceAddress []int    `json:"traceAddress"`
	Subtraces    int      `json:"subtraces"`
}

// Depth is the length of the trace address. The root call has depth 0.
func (e TraceEntry) Depth() int {
	return len(e.TraceAddress)
}

// MovesValue reports whether the entry transfers native value.
func (e TraceEntry) MovesValue() bool {
	if e.Value == nil || e.Value.Sign() == 0 {
		return false
	}
	switch e.Type {
	case TraceCall:
		return e.CallType != "delegatecall" && e.CallType != "staticcall"
	case TraceCreate, TraceSuicide, TraceReward:
		return true
	default:
		return false
	}
}
