package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "  Trade ID ", "MATURITYDATE", "notional amount", "\tParty A\n", "already normal"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
	assert.Equal(t, "trade id", Normalize("  Trade ID "))
}

func TestFromAny(t *testing.T) {
	assert.Equal(t, "notional", FromAny(" Notional "))
	assert.Equal(t, "", FromAny(42))
	assert.Equal(t, "", FromAny(nil))
	assert.Equal(t, "", FromAny([]string{"x"}))
}

func TestResolverResolve(t *testing.T) {
	r := NewResolver(
		map[string]string{"Termination Date": "maturityDate", "party a": "firmId"},
		[]string{"maturityDate", "notional"},
		[]string{"strike"},
	)

	tests := []struct {
		key       string
		canonical string
		ok        bool
	}{
		{key: "termination date", canonical: "maturitydate", ok: true},
		{key: "party a", canonical: "firmid", ok: true},
		{key: "notional", canonical: "notional", ok: true},
		{key: "strike", canonical: "strike", ok: true},
		{key: "unknown field", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := r.Resolve(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.canonical, got)
		})
	}

	_, ok := r.Alias("notional")
	assert.False(t, ok, "expected-set fallback is not an alias")
}

func TestFind(t *testing.T) {
	m := map[string]string{"TradeID": "T1", "Notional_Amount": "100"}

	key, v, ok := Find(m, "tradeid")
	assert.True(t, ok)
	assert.Equal(t, "TradeID", key)
	assert.Equal(t, "T1", v)

	key, v, ok = Find(m, "Notional_Amount")
	assert.True(t, ok)
	assert.Equal(t, "Notional_Amount", key)
	assert.Equal(t, "100", v)

	_, _, ok = Find(m, "fixed_rate")
	assert.False(t, ok)
}

func TestFindIsDeterministicOnCollisions(t *testing.T) {
	m := map[string]int{"TRADEID": 1, "tradeId": 2, "TradeId": 3}
	for i := 0; i < 20; i++ {
		key, v, ok := Find(m, "tradeid")
		assert.True(t, ok)
		assert.Equal(t, "TRADEID", key)
		assert.Equal(t, 1, v)
	}
}
