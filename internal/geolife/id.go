package geolife

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// seqDigits is the width reserved for the trajectory stem (YYYYMMDDhhmmss).
const seqDigits = 14

var (
	// ErrInvalidActivityID is returned when a user id or file stem cannot form an activity id.
	ErrInvalidActivityID = errors.New("invalid activity id")

	seqSpan     = int64(math.Pow10(seqDigits))
	maxUserPart = (math.MaxInt64 - (seqSpan - 1)) / seqSpan
)

// ActivityID packs the numeric user id above a fixed-width stem field:
// user*10^14 + seq. Distinct (user, seq) pairs never collide.
func ActivityID(userID, seq string) (int64, error) {
	u, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || u < 0 || u > maxUserPart {
		return 0, fmt.Errorf("%w: user %q", ErrInvalidActivityID, userID)
	}
	if seq == "" || len(seq) > seqDigits || !allDigits(seq) {
		return 0, fmt.Errorf("%w: sequence %q", ErrInvalidActivityID, seq)
	}
	s, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence %q", ErrInvalidActivityID, seq)
	}
	return u*seqSpan + s, nil
}

// SplitActivityID reverses ActivityID. The user part is returned without zero padding.
func SplitActivityID(id int64) (user int64, seq int64) {
	return id / seqSpan, id % seqSpan
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
