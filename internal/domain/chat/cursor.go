package chat

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a keyset position: a timestamp plus an id breaking ties.
// Message pages move forward (ascending); conversation pages move backward
// (most recent first).
type Cursor struct {
	At time.Time
	ID string
}

func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == ""
}

// After reports whether c sorts strictly after other.
func (c Cursor) After(other Cursor) bool {
	if !c.At.Equal(other.At) {
		return c.At.After(other.At)
	}
	return c.ID > other.ID
}

func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := fmt.Sprintf("%d|%s", c.At.UTC().UnixMicro(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func ParseCursor(raw string) (Cursor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	return Cursor{At: time.UnixMicro(micros).UTC(), ID: parts[1]}, nil
}

// PageRequest carries a keyset cursor and a page size.
type PageRequest struct {
	Cursor Cursor
	Limit  int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

func (p PageRequest) Normalized(def, max int) PageRequest {
	if def <= 0 {
		def = DefaultPageSize
	}
	if max <= 0 {
		max = MaxPageSize
	}
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	return p
}
