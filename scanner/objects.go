package scanner

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/ir/raw"
)

// ErrUnexpectedToken is returned when a token cannot start an object.
var ErrUnexpectedToken = errors.New("unexpected token")

const maxObjectDepth = 64

// ReadObject parses one raw object from the token stream. Composite
// objects (arrays, dictionaries) are read recursively. Stream payloads
// are NOT consumed: callers that expect a stream must resolve /Length,
// call SetNextStreamLength, and read the next token themselves.
func ReadObject(s Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return objectFromToken(s, tok, 0)
}

// ObjectFromToken continues parsing from an already-read token.
func ObjectFromToken(s Scanner, tok Token) (raw.Object, error) {
	return objectFromToken(s, tok, 0)
}

func objectFromToken(s Scanner, tok Token, depth int) (raw.Object, error) {
	if depth > maxObjectDepth {
		return nil, errors.New("object nesting too deep")
	}
	switch tok.Type {
	case TokenNumber:
		switch v := tok.Value.(type) {
		case int64:
			return raw.NumberInt(v), nil
		case float64:
			return raw.NumberFloat(v), nil
		}
		return nil, fmt.Errorf("number token with %T value", tok.Value)
	case TokenName:
		return raw.NameLiteral(tok.Value.(string)), nil
	case TokenString:
		return raw.Str(tok.Value.([]byte)), nil
	case TokenBoolean:
		return raw.Bool(tok.Value.(bool)), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		r := tok.Value.(struct{ Num, Gen int })
		return raw.Ref(r.Num, r.Gen), nil
	case TokenArray:
		return readArray(s, depth+1)
	case TokenDict:
		return readDict(s, depth+1)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedToken, tok.Value)
	}
}

func readArray(s Scanner, depth int) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Value == "]" {
			return arr, nil
		}
		item, err := objectFromToken(s, tok, depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func readDict(s Scanner, depth int) (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Value == ">>" {
			return dict, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("dict key must be a name, got %v", tok.Value)
		}
		key := tok.Value.(string)
		valTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		val, err := objectFromToken(s, valTok, depth)
		if err != nil {
			return nil, err
		}
		dict.Set(raw.NameObj{Val: key}, val)
	}
}
