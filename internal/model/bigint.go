package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigInt wraps big.Int so it serializes as {"type":"bigint","value":"..."}.
type BigInt struct {
	*big.Int
}

func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{Int: new(big.Int)}
	}
	return BigInt{Int: new(big.Int).Set(v)}
}

type bigIntJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	v := "0"
	if b.Int != nil {
		v = b.Int.String()
	}
	return json.Marshal(bigIntJSON{Type: "bigint", Value: v})
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var raw bigIntJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "bigint" {
		return fmt.Errorf("unexpected bigint tag %q", raw.Type)
	}
	v, ok := new(big.Int).SetString(raw.Value, 10)
	if !ok {
		return fmt.Errorf("invalid bigint value %q", raw.Value)
	}
	b.Int = v
	return nil
}
