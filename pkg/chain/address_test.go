package chain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressRoundTrip(t *testing.T) {
	a := Address{Workchain: -1}
	a.Hash[0] = 0xab
	a.Hash[31] = 0x01
	s := a.String()
	require.True(t, strings.HasPrefix(s, "-1:ab"))
	parsed, err := ParseAddress(s)
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestParseAddressErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"0",
		"0:zz",
		"0:abcd",
		"257:" + strings.Repeat("00", 32),
		"x:" + strings.Repeat("00", 32),
	} {
		_, err := ParseAddress(s)
		require.Error(t, err, "input %q", s)
	}
}

func TestAddressJSON(t *testing.T) {
	a := Address{Workchain: 0}
	a.Hash[5] = 0x7f
	data, err := json.Marshal(a)
	require.NoError(t, err)
	var b Address
	require.NoError(t, json.Unmarshal(data, &b))
	require.Equal(t, a, b)
}

func TestPairKey(t *testing.T) {
	a := Address{Workchain: 0}
	a.Hash[0] = 1
	b := Address{Workchain: -1}
	b.Hash[0] = 2
	k := PairKey(a, b)
	l, r, err := ParsePairKey(k)
	require.NoError(t, err)
	require.Equal(t, a, l)
	require.Equal(t, b, r)

	_, _, err = ParsePairKey("not-a-pair")
	require.Error(t, err)
}

func TestHintSetAdd(t *testing.T) {
	a := Address{Workchain: 0}
	a.Hash[0] = 1
	b := Address{Workchain: 0}
	b.Hash[0] = 2
	var h HintSet
	require.True(t, h.Add(a, b))
	require.False(t, h.Add(a))
	require.True(t, h.Add(Address{Workchain: 1}))
	require.Len(t, h.Addresses, 3)
}
