package customid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_EveryTypeIsHandled(t *testing.T) {
	for _, typ := range Types() {
		p, err := Decode(`{"type":"` + string(typ) + `","data":{}}`)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, p.ActionType())
	}
}

func TestDecode_TypedData(t *testing.T) {
	raw := MustEncode(RemoveLocationConfirmation{GuildID: "1234567890"})

	p, err := Decode(raw)
	require.NoError(t, err)

	got, ok := p.(RemoveLocationConfirmation)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, "1234567890", got.GuildID)
}

func TestDecode_AcceptsLegacyPayloadShape(t *testing.T) {
	p, err := Decode(`{"type":"remove-location-confirmation","data":{"guildID":"42"}}`)
	require.NoError(t, err)
	assert.Equal(t, RemoveLocationConfirmation{GuildID: "42"}, p)
}

func TestDecode_MissingData(t *testing.T) {
	p, err := Decode(`{"type":"help-users"}`)
	require.NoError(t, err)
	assert.Equal(t, HelpUsers{}, p)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("0")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("not json")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(`{"data":{}}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(`{"type":"location-page","data":{"page":1}}`)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode(`{"type":"location-subdivision","data":{"country":7}}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTypeOf(t *testing.T) {
	typ, err := TypeOf(MustEncode(CountryLetter{Row: 1}))
	require.NoError(t, err)
	assert.Equal(t, TypeCountryLetter, typ)

	_, err = TypeOf("{}")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_DistinctRows(t *testing.T) {
	a := MustEncode(CountryLetter{Row: 0})
	b := MustEncode(CountryLetter{Row: 1})
	assert.NotEqual(t, a, b)
}

func TestEncode_TooLong(t *testing.T) {
	long := make([]byte, MaxLen)
	for i := range long {
		long[i] = 'x'
	}
	_, err := Encode(LocationSubdivision{Country: string(long)})
	assert.ErrorIs(t, err, ErrTooLong)
}
