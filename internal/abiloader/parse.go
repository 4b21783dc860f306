package abiloader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Errors go-ethereum raises for ABIs that are still usable for decoding.
var ignorableParseErrors = []*regexp.Regexp{
	regexp.MustCompile(`only single receive is allowed`),
	regexp.MustCompile(`only single fallback is allowed`),
}

var parsed sync.Map

// ParseABI parses ABI JSON, tolerating duplicate receive and fallback entries.
// Results are memoized by the raw JSON.
func ParseABI(raw string) (*abi.ABI, error) {
	if v, ok := parsed.Load(raw); ok {
		return v.(*abi.ABI), nil
	}

	a := &abi.ABI{}
	if err := a.UnmarshalJSON([]byte(raw)); err != nil {
		ignorable := false
		for _, pattern := range ignorableParseErrors {
			if pattern.MatchString(err.Error()) {
				ignorable = true
				break
			}
		}
		if !ignorable {
			return nil, fmt.Errorf("parse abi: %w", err)
		}
	}

	parsed.Store(raw, a)
	return a, nil
}

// HasFragment reports whether raw declares the function or error selector, or the event topic.
func HasFragment(raw, signature, event string) bool {
	a, err := ParseABI(raw)
	if err != nil {
		return false
	}
	if sel, ok := selectorBytes(signature); ok {
		if _, err := a.MethodById(sel); err == nil {
			return true
		}
		for _, e := range a.Errors {
			if bytes.Equal(e.ID[:4], sel) {
				return true
			}
		}
	}
	if event != "" {
		if _, err := a.EventByID(common.HexToHash(event)); err == nil {
			return true
		}
	}
	return false
}

func selectorBytes(signature string) ([]byte, bool) {
	s := strings.TrimPrefix(strings.ToLower(signature), "0x")
	if len(s) != 8 {
		return nil, false
	}
	return common.FromHex(s), true
}
