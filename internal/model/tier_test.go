package model

import "testing"

func TestParseTier(t *testing.T) {
	cases := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{"BASIC", TierBasic, true},
		{"plus", TierPlus, true},
		{" vip ", TierVIP, true},
		{"", "", false},
		{"GOLD", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseTier(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseTier(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseTierCriteria(t *testing.T) {
	crit, ok := ParseTierCriteria("plus, VIP")
	if !ok {
		t.Fatal("valid criteria rejected")
	}
	if crit.Allows(TierBasic) {
		t.Error("criteria admits BASIC")
	}
	if !crit.Allows(TierPlus) || !crit.Allows(TierVIP) {
		t.Error("criteria rejects a listed tier")
	}
	if got := crit.String(); got != "PLUS,VIP" {
		t.Errorf("String() = %q, want %q", got, "PLUS,VIP")
	}

	// One unknown entry invalidates the whole value.
	if _, ok := ParseTierCriteria("BASIC,GOLD"); ok {
		t.Error("criteria with unknown tier accepted")
	}
}
