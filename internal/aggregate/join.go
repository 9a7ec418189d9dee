package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

// JoinMode decides what happens to keys present in only one input table.
type JoinMode string

const (
	// JoinInner drops unmatched keys from both sides.
	JoinInner JoinMode = "inner"
	// JoinLeft keeps every key of the left table and zero-fills the right side.
	JoinLeft JoinMode = "left"
	// JoinStrict fails with a JoinGapError on the first unmatched key.
	JoinStrict JoinMode = "strict"
)

// ErrDuplicateKey is returned when an input table repeats a primary key.
var ErrDuplicateKey = errors.New("duplicate primary key")

// ParseJoinMode validates a configured join mode. Empty means inner.
func ParseJoinMode(s string) (JoinMode, error) {
	switch JoinMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", JoinInner:
		return JoinInner, nil
	case JoinLeft:
		return JoinLeft, nil
	case JoinStrict:
		return JoinStrict, nil
	}
	return "", fmt.Errorf("unknown join mode %q (want inner, left or strict)", s)
}

// JoinGapError reports a key that has no counterpart in the other table.
type JoinGapError struct {
	Join string // which join: "feed/messages" or "dimensions/active users"
	Side string // the table holding the unmatched key
	Key  string
}

func (e *JoinGapError) Error() string {
	return fmt.Sprintf("%s join: %s has no match for %s", e.Join, e.Side, e.Key)
}

// JoinStats counts keys discarded by a join.
type JoinStats struct {
	Matched      int
	LeftDropped  int
	RightDropped int
}

// Dropped is the total number of discarded keys.
func (s JoinStats) Dropped() int {
	return s.LeftDropped + s.RightDropped
}
