package status

import "testing"

func TestAxisStatusBits(t *testing.T) {
	var s AxisStatus
	s = s.With(BitENA, true).With(BitTAR, true).With(BitRHOM, true)
	if !s.ENA() || !s.TAR() || !s.RHOM() {
		t.Fatalf("expected ENA|TAR|RHOM, got %s", s)
	}
	if uint32(s) != 0x40|0x100|0x40000 {
		t.Errorf("wire value = %#x", uint32(s))
	}
	s = s.With(BitTAR, false)
	if s.TAR() {
		t.Errorf("TAR should be cleared")
	}
	if s.String() != "ENA|RHOM" {
		t.Errorf("String() = %q", s.String())
	}
}

func TestGroupStatusAggregation(t *testing.T) {
	a := AxisStatus(0).With(BitENA, true).With(BitTAR, true)
	b := AxisStatus(0).With(BitENA, true).With(BitMV, true).With(BitRPEL, true)
	g := GroupStatusFrom(a, b)
	if !g.ENA() || !g.MV() {
		t.Fatalf("expected ENA|MV, got %s", g)
	}
	if g.Has(BitTAR) || g.Has(BitRPEL) {
		t.Errorf("group status must not carry TAR or latched limits: %s", g)
	}
}

func TestAxisMask(t *testing.T) {
	m := MaskOf(0, 2)
	if m != 0b101 {
		t.Fatalf("MaskOf(0,2) = %b", m)
	}
	if !m.Has(0) || m.Has(1) || !m.Has(2) {
		t.Errorf("Has mismatch for %b", m)
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d", m.Count())
	}
	if !m.Within(3) || m.Within(2) {
		t.Errorf("Within mismatch for %b", m)
	}
	idx := m.Indexes()
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 2 {
		t.Errorf("Indexes = %v", idx)
	}
}

func TestStateNames(t *testing.T) {
	if AxisError.String() != "error" || AxisState(9).String() != "AxisState(9)" {
		t.Errorf("unexpected axis state names")
	}
	if GroupErrorStop.String() != "error_stop" {
		t.Errorf("unexpected group state name %q", GroupErrorStop)
	}
	if !AxisWaitSync.Moving() || AxisStopped.Moving() {
		t.Errorf("Moving() mismatch")
	}
}
