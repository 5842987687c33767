package query

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidCursor is returned by DecodeCursor for malformed input.
var ErrInvalidCursor = errors.New("query: invalid cursor")

// cursorState is the opaque base64url-encoded pagination marker: an
// offset into the sorted/limited result stream.
type cursorState struct {
	Offset int `json:"offset"`
}

// EncodeCursor produces the opaque cursor token for resuming after
// offset items.
func EncodeCursor(offset int) string {
	b, _ := json.Marshal(cursorState{Offset: offset})
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor token produced by EncodeCursor.
func DecodeCursor(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	var cs cursorState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return 0, ErrInvalidCursor
	}
	if cs.Offset < 0 {
		return 0, ErrInvalidCursor
	}
	return cs.Offset, nil
}
