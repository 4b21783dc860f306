package sources

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type abiArg struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Indexed    bool     `json:"indexed,omitempty"`
	Components []abiArg `json:"components,omitempty"`
}

type abiEntry struct {
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	Inputs          []abiArg `json:"inputs"`
	Outputs         []abiArg `json:"outputs,omitempty"`
	StateMutability string   `json:"stateMutability,omitempty"`
	Anonymous       bool     `json:"anonymous,omitempty"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// FragmentABI turns a text signature such as "swap((address,uint256)[],bytes)"
// into a one-entry ABI JSON document. Inputs are unnamed and never indexed.
func FragmentABI(text string, event bool) (string, error) {
	name, args, err := parseSignature(text)
	if err != nil {
		return "", err
	}
	entry := abiEntry{Type: "function", Name: name, Inputs: args, Outputs: []abiArg{}, StateMutability: "nonpayable"}
	if event {
		entry = abiEntry{Type: "event", Name: name, Inputs: args}
	}
	raw, err := json.Marshal([]abiEntry{entry})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func parseSignature(text string) (string, []abiArg, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	open := strings.IndexByte(text, '(')
	if open <= 0 || !strings.HasSuffix(text, ")") {
		return "", nil, fmt.Errorf("malformed signature %q", text)
	}
	name := text[:open]
	if !identRe.MatchString(name) {
		return "", nil, fmt.Errorf("malformed signature name %q", name)
	}
	args, err := parseArgs(text[open+1 : len(text)-1])
	if err != nil {
		return "", nil, fmt.Errorf("signature %q: %w", text, err)
	}
	return name, args, nil
}

func parseArgs(list string) ([]abiArg, error) {
	args := []abiArg{}
	if list == "" {
		return args, nil
	}
	parts, err := splitTopLevel(list)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		arg, err := parseArg(p)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func parseArg(p string) (abiArg, error) {
	if p == "" {
		return abiArg{}, fmt.Errorf("empty type")
	}
	if p[0] != '(' {
		return abiArg{Type: canonicalType(p)}, nil
	}
	depth := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				components, err := parseArgs(p[1:i])
				if err != nil {
					return abiArg{}, err
				}
				// go-ethereum rejects anonymous tuple fields.
				for j := range components {
					components[j].Name = fmt.Sprintf("arg%d", j)
				}
				suffix := p[i+1:]
				if suffix != "" && !strings.HasPrefix(suffix, "[") {
					return abiArg{}, fmt.Errorf("unexpected %q after tuple", suffix)
				}
				return abiArg{Type: "tuple" + suffix, Components: components}, nil
			}
		}
	}
	return abiArg{}, fmt.Errorf("unbalanced tuple %q", p)
}

func splitTopLevel(list string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	return append(parts, list[start:]), nil
}

func canonicalType(t string) string {
	base, suffix := t, ""
	if i := strings.IndexByte(t, '['); i >= 0 {
		base, suffix = t[:i], t[i:]
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	case "byte":
		base = "bytes1"
	}
	return base + suffix
}

// matchesHash checks a text signature against the selector or topic it was returned for.
func matchesHash(text, hexHash string, event bool) bool {
	sum := crypto.Keccak256([]byte(strings.ReplaceAll(text, " ", "")))
	want := common.FromHex(hexHash)
	if !event {
		sum = sum[:4]
	}
	return len(want) == len(sum) && common.Bytes2Hex(want) == common.Bytes2Hex(sum)
}
