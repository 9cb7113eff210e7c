package deal

import "testing"

func TestStatusFromInt(t *testing.T) {
	for v := 0; v <= 5; v++ {
		s, err := StatusFromInt(v)
		if err != nil {
			t.Fatalf("StatusFromInt(%d): %v", v, err)
		}
		if int(s) != v {
			t.Fatalf("StatusFromInt(%d) = %d", v, s)
		}
	}
	for _, v := range []int{-1, 6, 42} {
		if _, err := StatusFromInt(v); err == nil {
			t.Errorf("StatusFromInt(%d): expected error", v)
		}
	}
}

func TestStatusString(t *testing.T) {
	want := map[Status]string{
		StatusCreated:   "created",
		StatusFunded:    "funded",
		StatusActive:    "active",
		StatusDisputed:  "disputed",
		StatusCompleted: "completed",
		StatusCancelled: "cancelled",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), s.String(), name)
		}
	}
}

func TestStatusReleasable(t *testing.T) {
	releasable := map[Status]bool{
		StatusCreated:   false,
		StatusFunded:    true,
		StatusActive:    true,
		StatusDisputed:  false,
		StatusCompleted: false,
		StatusCancelled: false,
	}
	for s, want := range releasable {
		if s.releasable() != want {
			t.Errorf("Status %s releasable = %v, want %v", s, s.releasable(), want)
		}
	}
}

func TestRulingFromInt(t *testing.T) {
	for v := 0; v <= 3; v++ {
		r, err := RulingFromInt(v)
		if err != nil {
			t.Fatalf("RulingFromInt(%d): %v", v, err)
		}
		if int(r) != v {
			t.Fatalf("RulingFromInt(%d) = %d", v, r)
		}
	}
	if _, err := RulingFromInt(4); err == nil {
		t.Error("RulingFromInt(4): expected error")
	}
	if _, err := RulingFromInt(-1); err == nil {
		t.Error("RulingFromInt(-1): expected error")
	}
}
