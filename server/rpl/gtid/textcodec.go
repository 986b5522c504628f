package gtid

import (
	"strconv"
	"strings"

	jerrors "github.com/juju/errors"
)

// Separators fixed by the identifier algebra's canonical string
// format: "<sid>:<start>-<end>".
const (
	sidGnoSep  = ":"
	rangeSep   = "-"
	textFields = 2 // count of sidGnoSep-delimited fields
)

// EncodeRowText renders a row's canonical text form. An implementation
// must round-trip any row it has itself written: DecodeRowText(EncodeRowText(s, a, b)) == (s, a, b, nil).
func EncodeRowText(sid SID, start, end GNO) string {
	var b strings.Builder
	b.WriteString(sid.String())
	b.WriteString(sidGnoSep)
	b.WriteString(strconv.FormatUint(uint64(start), 10))
	b.WriteString(rangeSep)
	b.WriteString(strconv.FormatUint(uint64(end), 10))
	return b.String()
}

// DecodeRowText parses the "<sid>:<start>-<end>" form produced by
// EncodeRowText. Any deviation fails with ErrMalformedInterval (or
// ErrMalformedSid when the sid portion itself is unparsable).
func DecodeRowText(text string) (SID, GNO, GNO, error) {
	parts := strings.SplitN(text, sidGnoSep, textFields)
	if len(parts) != textFields {
		return SID{}, 0, 0, jerrors.Annotatef(ErrMalformedInterval, "row %q: missing %q separator", text, sidGnoSep)
	}
	sid, err := ParseSID(parts[0])
	if err != nil {
		return SID{}, 0, 0, jerrors.Trace(err)
	}

	rangeParts := strings.SplitN(parts[1], rangeSep, textFields)
	if len(rangeParts) != textFields {
		return SID{}, 0, 0, jerrors.Annotatef(ErrMalformedInterval, "row %q: missing %q separator", text, rangeSep)
	}
	start, err := strconv.ParseUint(rangeParts[0], 10, 64)
	if err != nil {
		return SID{}, 0, 0, jerrors.Annotatef(ErrMalformedInterval, "row %q: bad gno_start: %v", text, err)
	}
	end, err := strconv.ParseUint(rangeParts[1], 10, 64)
	if err != nil {
		return SID{}, 0, 0, jerrors.Annotatef(ErrMalformedInterval, "row %q: bad gno_end: %v", text, err)
	}
	iv := Interval{SID: sid, Start: GNO(start), End: GNO(end)}
	if !iv.Valid() {
		return SID{}, 0, 0, jerrors.Annotatef(ErrMalformedInterval, "row %q: gno_start must be >= 1 and <= gno_end", text)
	}
	return sid, GNO(start), GNO(end), nil
}
