package resolution

import "fmt"

// TieBreakPolicy decides an equal-weight disagreement between the stored value and an incoming one
type TieBreakPolicy string

const (
	// TieBreakLastWriteWins overwrites with the incoming value
	TieBreakLastWriteWins TieBreakPolicy = "last_write_wins"
	// TieBreakFirstWriteWins keeps the stored value
	TieBreakFirstWriteWins TieBreakPolicy = "first_write_wins"
	// TieBreakReject keeps the stored value and reports a FieldConflict for review
	TieBreakReject TieBreakPolicy = "reject"
)

// DefaultTieBreakPolicy preserves the historical last-write-wins behaviour
const DefaultTieBreakPolicy = TieBreakLastWriteWins

func ParseTieBreakPolicy(s string) (TieBreakPolicy, error) {
	switch p := TieBreakPolicy(s); p {
	case TieBreakLastWriteWins, TieBreakFirstWriteWins, TieBreakReject:
		return p, nil
	case "":
		return DefaultTieBreakPolicy, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q", s)
}
