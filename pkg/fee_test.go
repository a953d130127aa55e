package lnurl

import "testing"

func TestRoutingFee(t *testing.T) {
	cases := []struct {
		sats, fee uint64
	}{
		{0, 0},
		{1, 1},
		{99, 1},
		{100, 1},
		{101, 2},
		{1000, 10},
		{1001, 11},
		{21000000, 210000},
	}
	for _, c := range cases {
		if got := RoutingFee(c.sats); got != c.fee {
			t.Errorf("RoutingFee(%d) = %d, want %d", c.sats, got, c.fee)
		}
	}
}

func TestForwardAmounts(t *testing.T) {
	fee, fwd := ForwardAmounts(1000 * 1000)
	if fee != 10 || fwd != 990*1000 {
		t.Fatalf("ForwardAmounts(1000 sat): fee %d fwd %d", fee, fwd)
	}
	// sub-sat remainder stays with the forwarded amount
	fee, fwd = ForwardAmounts(1500)
	if fee != 1 || fwd != 500 {
		t.Fatalf("ForwardAmounts(1500 msat): fee %d fwd %d", fee, fwd)
	}
	// fee swallows everything
	fee, fwd = ForwardAmounts(999)
	if fee != 0 || fwd != 999 {
		t.Fatalf("ForwardAmounts(999 msat): fee %d fwd %d", fee, fwd)
	}
	fee, fwd = ForwardAmounts(1000)
	if fee != 1 || fwd != 0 {
		t.Fatalf("ForwardAmounts(1000 msat): fee %d fwd %d", fee, fwd)
	}
}
