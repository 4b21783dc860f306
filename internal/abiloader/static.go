package abiloader

import "txdecoder/internal/model"

// Selectors with a fixed ABI that never needs a network lookup.
const (
	SelectorMultiSend         = "0x8d80ff0a"
	SelectorHandleOpsV06      = "0x1fad948c"
	SelectorHandleOpsV07      = "0x765e827f"
	SelectorAggregate         = "0x252dba42"
	SelectorAggregate3        = "0x82ad56cb"
	SelectorAggregate3Value   = "0x174dea71"
	SelectorTryAggregate      = "0xbce38bd7"
	SelectorTryBlockAggregate = "0x399542e9"
	SelectorBlockAndAggregate = "0xc3077fa9"
	SelectorExecTransaction   = "0x6a761202"
	SelectorErrorString       = "0x08c379a0"
	SelectorPanic             = "0x4e487b71"
)

const multiSendABI = `[{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}]`

const userOpV06Components = `[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"callGasLimit","type":"uint256"},
	{"name":"verificationGasLimit","type":"uint256"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"maxFeePerGas","type":"uint256"},
	{"name":"maxPriorityFeePerGas","type":"uint256"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}
]`

const userOpV07Components = `[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"accountGasLimits","type":"bytes32"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"gasFees","type":"bytes32"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}
]`

const handleOpsV06ABI = `[{"type":"function","name":"handleOps","stateMutability":"nonpayable","inputs":[{"name":"ops","type":"tuple[]","components":` + userOpV06Components + `},{"name":"beneficiary","type":"address"}],"outputs":[]}]`

const handleOpsV07ABI = `[{"type":"function","name":"handleOps","stateMutability":"nonpayable","inputs":[{"name":"ops","type":"tuple[]","components":` + userOpV07Components + `},{"name":"beneficiary","type":"address"}],"outputs":[]}]`

const call2 = `[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}]`

const aggregateABI = `[{"type":"function","name":"aggregate","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":` + call2 + `}],"outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}]}]`

const blockAndAggregateABI = `[{"type":"function","name":"blockAndAggregate","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":` + call2 + `}],"outputs":[]}]`

const aggregate3ABI = `[{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[]}]`

const aggregate3ValueABI = `[{"type":"function","name":"aggregate3Value","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"value","type":"uint256"},{"name":"callData","type":"bytes"}]}],"outputs":[]}]`

const tryAggregateABI = `[{"type":"function","name":"tryAggregate","stateMutability":"payable","inputs":[{"name":"requireSuccess","type":"bool"},{"name":"calls","type":"tuple[]","components":` + call2 + `}],"outputs":[]}]`

const tryBlockAndAggregateABI = `[{"type":"function","name":"tryBlockAndAggregate","stateMutability":"payable","inputs":[{"name":"requireSuccess","type":"bool"},{"name":"calls","type":"tuple[]","components":` + call2 + `}],"outputs":[]}]`

const execTransactionABI = `[{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
	{"name":"to","type":"address"},
	{"name":"value","type":"uint256"},
	{"name":"data","type":"bytes"},
	{"name":"operation","type":"uint8"},
	{"name":"safeTxGas","type":"uint256"},
	{"name":"baseGas","type":"uint256"},
	{"name":"gasPrice","type":"uint256"},
	{"name":"gasToken","type":"address"},
	{"name":"refundReceiver","type":"address"},
	{"name":"signatures","type":"bytes"}
],"outputs":[{"name":"success","type":"bool"}]}]`

// ErrorABI holds the standard Error(string) and Panic(uint256) revert shapes.
const ErrorABI = `[{"type":"error","name":"Error","inputs":[{"name":"message","type":"string"}]},{"type":"error","name":"Panic","inputs":[{"name":"code","type":"uint256"}]}]`

var staticFragments = map[string]string{
	SelectorMultiSend:         multiSendABI,
	SelectorHandleOpsV06:      handleOpsV06ABI,
	SelectorHandleOpsV07:      handleOpsV07ABI,
	SelectorAggregate:         aggregateABI,
	SelectorAggregate3:        aggregate3ABI,
	SelectorAggregate3Value:   aggregate3ValueABI,
	SelectorTryAggregate:      tryAggregateABI,
	SelectorTryBlockAggregate: tryBlockAndAggregateABI,
	SelectorBlockAndAggregate: blockAndAggregateABI,
	SelectorExecTransaction:   execTransactionABI,
	SelectorErrorString:       ErrorABI,
	SelectorPanic:             ErrorABI,
}

// StaticABI returns the built in fragment for a selector.
func StaticABI(signature string) (model.ContractABI, bool) {
	raw, ok := staticFragments[signature]
	if !ok {
		return model.ContractABI{}, false
	}
	return model.ContractABI{
		Type:      model.ABITypeFunc,
		Signature: signature,
		ABI:       raw,
		Source:    "static",
	}, true
}
