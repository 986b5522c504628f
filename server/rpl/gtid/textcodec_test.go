package gtid

import (
	"testing"

	jerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRowTextRoundTrip(t *testing.T) {
	sid := sidFor(t, '7')
	text := EncodeRowText(sid, 5, 9)
	gotSID, start, end, err := DecodeRowText(text)
	require.NoError(t, err)
	assert.Equal(t, sid, gotSID)
	assert.Equal(t, GNO(5), start)
	assert.Equal(t, GNO(9), end)
}

func TestDecodeRowTextMissingSeparator(t *testing.T) {
	_, _, _, err := DecodeRowText("not-a-row")
	require.Error(t, err)
	assert.Equal(t, ErrMalformedInterval, jerrors.Cause(err))
}

func TestDecodeRowTextBadSid(t *testing.T) {
	_, _, _, err := DecodeRowText("zz:1-2")
	require.Error(t, err)
	assert.Equal(t, ErrMalformedSid, jerrors.Cause(err))
}

func TestDecodeRowTextStartGreaterThanEnd(t *testing.T) {
	sid := sidFor(t, '3')
	text := sid.String() + ":9-1"
	_, _, _, err := DecodeRowText(text)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedInterval, jerrors.Cause(err))
}

func TestDecodeRowTextZeroStart(t *testing.T) {
	sid := sidFor(t, '3')
	text := sid.String() + ":0-1"
	_, _, _, err := DecodeRowText(text)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedInterval, jerrors.Cause(err))
}
