package units

import (
	"encoding/json"
	"testing"

	xerrors "IntentWallet/internal/errors"

	"github.com/stretchr/testify/require"
)

func TestParseAmountQuantizes(t *testing.T) {
	cases := map[string]string{
		"100":          "100",
		"100.0":        "100",
		"0.25":         "0.25",
		".5":           "0.5",
		"12.3456789":   "12.345679",
		"0.0000005":    "0",
		"0.0000015":    "0.000002",
		"0.00000051":   "0.000001",
		"250.000000":   "250",
		"000100.10":    "100.1",
		"+7":           "7",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got.String(), input)
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "-1", "1e6", "abc", "1.2.3", ".", "1,000"} {
		_, err := ParseAmount(input)
		require.Error(t, err, input)
		require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err), input)
	}
}

func TestToBaseUnits(t *testing.T) {
	limit := MustParse("100.0")
	units, err := limit.ToBaseUnits(6)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), units.Uint64())

	units, err = MustParse("250").ToBaseUnits(6)
	require.NoError(t, err)
	require.Equal(t, uint64(250_000_000), units.Uint64())

	units, err = MustParse("1.5").ToBaseUnits(18)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", units.Dec())

	units, err = MustParse("3").ToBaseUnits(0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), units.Uint64())

	_, err = MustParse("0.5").ToBaseUnits(0)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestAmountEquality(t *testing.T) {
	require.True(t, MustParse("100").Equal(MustParse("100.0000001")))
	require.False(t, MustParse("100").Equal(MustParse("100.000001")))
	require.True(t, EqualPtr(nil, nil))
	require.False(t, EqualPtr(Ptr(MustParse("1")), nil))
	require.True(t, EqualPtr(Ptr(MustParse("1")), Ptr(MustParse("1.0"))))
	require.True(t, Amount{}.IsZero())
	require.Equal(t, "0.000001", FromMicros(1).String())
}

func TestAmountJSON(t *testing.T) {
	var payload struct {
		Limit  Amount  `json:"limit"`
		Number Amount  `json:"number"`
		Absent *Amount `json:"absent"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"limit":"42.5","number":100.25,"absent":null}`), &payload))
	require.Equal(t, "42.5", payload.Limit.String())
	require.Equal(t, "100.25", payload.Number.String())
	require.Nil(t, payload.Absent)

	encoded, err := json.Marshal(payload.Limit)
	require.NoError(t, err)
	require.JSONEq(t, `"42.5"`, string(encoded))
}
