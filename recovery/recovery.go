package recovery

import "context"

// Strategy decides how parsing reacts to malformed input.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location pinpoints where in the document an error occurred.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)
