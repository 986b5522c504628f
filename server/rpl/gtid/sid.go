package gtid

import (
	"bytes"
	"encoding/hex"
	"strings"

	jerrors "github.com/juju/errors"
)

// SIDTextLength is the width of a SID's canonical textual form.
const SIDTextLength = 32

// SID is a 16-byte opaque source identifier. Equality is byte
// equality; order is the lexicographic order of the underlying bytes
// and is only ever used as a secondary sort key during iteration.
type SID [16]byte

// ParseSID parses the canonical 32-hex-digit textual form of a SID.
func ParseSID(s string) (SID, error) {
	if len(s) != SIDTextLength {
		return SID{}, jerrors.Annotatef(ErrMalformedSid, "sid %q: want %d hex characters, got %d", s, SIDTextLength, len(s))
	}
	var raw [16]byte
	n, err := hex.Decode(raw[:], []byte(strings.ToLower(s)))
	if err != nil || n != len(raw) {
		return SID{}, jerrors.Annotatef(ErrMalformedSid, "sid %q is not valid hex", s)
	}
	return SID(raw), nil
}

// String renders the canonical lowercase hex form of the SID.
func (s SID) String() string {
	return hex.EncodeToString(s[:])
}

// Less implements the lexicographic byte order used to break ties
// when iterating a Set's intervals across multiple SIDs.
func (s SID) Less(other SID) bool {
	return bytes.Compare(s[:], other[:]) < 0
}

// IsZero reports whether s is the zero SID (the uninitialized value;
// never a identifier a real server would have assigned to itself).
func (s SID) IsZero() bool {
	return s == SID{}
}
