package model

// TxType classifies a decoded transaction.
type TxType string

const (
	TxNativeTransfer      TxType = "native-transfer"
	TxContractInteraction TxType = "contract-interaction"
)

// Decode stages reported in DecodeFailure.
const (
	StageMethod = "method"
	StageLog    = "log"
	StageTrace  = "trace"
	StageRevert = "revert"
	StageMeta   = "meta"
)

// DecodeFailure records a per item failure that did not abort the decode.
type DecodeFailure struct {
	Stage     string `json:"stage"`
	Index     int    `json:"index"`
	Address   string `json:"address,omitempty"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message"`
}

// RevertReason is a decoded revert found in the trace or receipt.
type RevertReason struct {
	Address string        `json:"address,omitempty"`
	Kind    string        `json:"kind"`
	Reason  string        `json:"reason"`
	Output  string        `json:"output,omitempty"`
	Decoded *DecodeResult `json:"decoded,omitempty"`
}

// DecodedTransaction is the terminal result of decoding one transaction.
type DecodedTransaction struct {
	TxHash            string       `json:"txHash"`
	TxType            TxType       `json:"txType"`
	ChainID           uint64       `json:"chainID"`
	ChainSymbol       string       `json:"chainSymbol"`
	BlockNumber       uint64       `json:"blockNumber"`
	Timestamp         uint64       `json:"timestamp"`
	From              string       `json:"fromAddress"`
	To                string       `json:"toAddress"`
	ToName            string       `json:"toName,omitempty"`
	ToType            ContractType `json:"toType,omitempty"`
	Nonce             uint64       `json:"nonce"`
	Value             BigInt       `json:"value"`
	GasUsed           BigInt       `json:"gasUsed"`
	EffectiveGasPrice BigInt       `json:"effectiveGasPrice"`
	Fee               BigInt       `json:"fee"`
	Reverted          bool         `json:"reverted"`

	MethodCall     *DecodeResult   `json:"methodCall,omitempty"`
	TraceCalls     []DecodeResult  `json:"traceCalls"`
	Interactions   []Interaction   `json:"interactions"`
	RevertReasons  []RevertReason  `json:"revertReasons,omitempty"`
	AssetsSent     []Asset         `json:"assetsSent"`
	AssetsReceived []Asset         `json:"assetsReceived"`
	Addresses      []string        `json:"addresses"`
	Errors         []DecodeFailure `json:"errors"`
}
