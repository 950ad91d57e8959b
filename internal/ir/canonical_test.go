package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"bool", IRBool(false), "false"},
		{"min int", IRInt(math.MinInt64), "-9223372036854775808"},
		{"fraction", IRFloat(3.25), "3.25"},
		{"integral float", IRFloat(12), "12"},
		{"huge float", IRFloat(1e21), "1e+21"},
		{"go float", float64(7), "7"},
		{"empty record", IRObject{}, "{}"},
		{
			"port record",
			IRObject{"port_code": IRString("NLRTM"), "id": IRInt(4), "berths": IRArray{IRInt(2), IRInt(1)}},
			`{"berths":[2,1],"id":4,"port_code":"NLRTM"}`,
		},
		{
			"nested keys sorted",
			IRObject{"spec": IRObject{"max_draft": IRFloat(14.5), "hazard": IRBool(true)}, "cargo_type": IRString("bulk")},
			`{"cargo_type":"bulk","spec":{"hazard":true,"max_draft":14.5}}`,
		},
		{
			"go map",
			map[string]any{"b": "x", "a": []any{int64(1), nil}},
			`{"a":[1,null],"b":"x"}`,
		},
		{
			// U+10000 encodes as a surrogate pair starting 0xD800, below U+E000.
			"utf16 key order",
			IRObject{"\uE000": IRInt(1), "\U00010000": IRInt(2)},
			"{\"\U00010000\":2,\"\uE000\":1}",
		},
		{"html kept", IRString("<fragile> & dry"), `"<fragile> & dry"`},
		{"control escaped", IRString("a\tb\"c\\"), `"a\tb\"c\\"`},
		{"line separators kept", IRString("a\u2028b\u2029c"), "\"a\u2028b\u2029c\""},
		{"literal backslash u2028", IRString(`\u2028`), `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNormalizesNFC(t *testing.T) {
	composed := IRObject{"caf\u00e9": IRString("Mont\u00e9al")}
	decomposed := IRObject{"cafe\u0301": IRString("Monte\u0301al")}

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(IRFloat(math.Inf(-1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-finite")

	_, err = MarshalCanonical(IRObject{"weight": IRArray{IRFloat(math.NaN())}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"weight"`)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestMarshalCanonicalStable(t *testing.T) {
	rec := IRObject{"name": IRString("Rotterdam"), "version": IRInt(3), "tenant_id": IRInt(7)}
	first, err := MarshalCanonical(rec)
	require.NoError(t, err)
	for range 5 {
		again, err := MarshalCanonical(rec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
