package orders

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCanceled, true},
		{StatusPaid, StatusFailed, false},
		{StatusPaid, StatusPending, false},
		{StatusFailed, StatusPaid, false},
		{StatusCanceled, StatusPaid, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(StatusPending) {
		t.Error("pending must not be terminal")
	}
	for _, s := range []PaymentStatus{StatusPaid, StatusFailed, StatusCanceled} {
		if !Terminal(s) {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestLineConsistent(t *testing.T) {
	ok := Line{UnitPriceCents: 1250, Qty: 3, LineTotalCents: 3750}
	if !ok.Consistent() {
		t.Error("expected consistent line")
	}
	bad := Line{UnitPriceCents: 1250, Qty: 3, LineTotalCents: 3751}
	if bad.Consistent() {
		t.Error("expected inconsistent line")
	}
}
