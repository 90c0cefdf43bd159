package series

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOf(vals ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		out[i] = json.RawMessage(v)
	}
	return out
}

func rawN(n int, v string) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestNormalize_PadsShortSeries(t *testing.T) {
	s := Normalize(rawN(5000, "1.5"))

	require.Len(t, s, HoursPerYear)
	assert.InDelta(t, 1.5, s[0], 1e-12)
	assert.InDelta(t, 1.5, s[4999], 1e-12)
	for i := 5000; i < HoursPerYear; i++ {
		if s[i] != 0 {
			t.Fatalf("s[%d]=%v want 0", i, s[i])
		}
	}
	assert.InDelta(t, 7500.0, s.Sum(), 1e-9)
}

func TestNormalize_TruncatesLongSeries(t *testing.T) {
	raw := rawN(HoursPerYear+24, "2")
	raw[HoursPerYear] = json.RawMessage("999")

	s := Normalize(raw)
	require.Len(t, s, HoursPerYear)
	assert.InDelta(t, 2*HoursPerYear, s.Sum(), 1e-9)
}

func TestNormalize_EmptyAndNonNumericYieldZero(t *testing.T) {
	cases := map[string][]json.RawMessage{
		"nil":      nil,
		"empty":    {},
		"null":     rawOf("1", "null", "3"),
		"string":   rawOf("1", `"2"`, "3"),
		"object":   rawOf(`{"P":1}`),
		"garbage":  rawOf("1", "1.2.3"),
		"missing":  {json.RawMessage("4"), nil},
		"boolean":  rawOf("true"),
		"overflow": rawOf("1e400"),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s := Normalize(raw)
			require.Len(t, s, HoursPerYear)
			assert.Zero(t, s.Sum())
		})
	}
}

func TestNormalize_AcceptsNegativeAndExponent(t *testing.T) {
	s := Normalize(rawOf("-0.5", "1e2", "3.25E-1"))
	assert.InDelta(t, -0.5, s[0], 1e-12)
	assert.InDelta(t, 100, s[1], 1e-12)
	assert.InDelta(t, 0.325, s[2], 1e-12)
}

func TestFromFloats_IdempotentOnAnnualSeries(t *testing.T) {
	in := make([]float64, HoursPerYear)
	for i := range in {
		in[i] = float64(i%24) * 0.1
	}
	once := FromFloats(in)
	twice := FromFloats(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, Series(in), once)
}

func TestFromFloats_AnyLengthIsAnnual(t *testing.T) {
	for _, n := range []int{0, 1, 24, HoursPerYear - 1, HoursPerYear, HoursPerYear + 1, 3 * HoursPerYear} {
		assert.Len(t, FromFloats(make([]float64, n)), HoursPerYear, "n=%d", n)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	s := FromFloats([]float64{1, 2, 3})
	c := s.Clone()
	c[0] = 42
	assert.InDelta(t, 1.0, s[0], 0)
	assert.Nil(t, Series(nil).Clone())
}
