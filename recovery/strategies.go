package recovery

import (
	"context"
	"fmt"
)

// StrictStrategy fails on the first malformed construct.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records errors and keeps going: every error is
// answered with ActionFix, so damaged xref tables are rebuilt and the
// scanner continues past the malformed construct.
type LenientStrategy struct {
	Errors []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	return ActionFix
}
