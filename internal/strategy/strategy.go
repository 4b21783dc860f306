package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by a strategy that answered but has no data for the key.
// It is a negative result, not a failure.
var ErrNotFound = errors.New("not found")

// Kind tags what a strategy resolves.
type Kind string

const (
	KindAddress  Kind = "address"
	KindFragment Kind = "fragment"
	KindMeta     Kind = "meta"
)

// Strategy is one external source able to resolve R from P.
type Strategy[P any, R any] interface {
	ID() string
	Kind() Kind
	Resolve(ctx context.Context, params P) (R, error)
}

// NoHealthyStrategyError means every configured strategy had an open breaker.
type NoHealthyStrategyError struct {
	Key string
}

func (e *NoHealthyStrategyError) Error() string {
	return fmt.Sprintf("no healthy strategy for %s", e.Key)
}

// Attempt records the outcome of one strategy during an execution.
type Attempt struct {
	Strategy string
	Err      error
}

// MissingError means every attempted strategy failed or reported not found.
type MissingError struct {
	Key      string
	Attempts []Attempt
}

func (e *MissingError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("missing %s: no strategies", e.Key)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("missing %s (%s)", e.Key, strings.Join(parts, "; "))
}

// NotFound reports whether every attempt ended with ErrNotFound.
func (e *MissingError) NotFound() bool {
	for _, a := range e.Attempts {
		if !errors.Is(a.Err, ErrNotFound) {
			return false
		}
	}
	return true
}
