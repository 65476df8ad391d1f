package arch

import "testing"

func TestFakeIntsSaveRestore(t *testing.T) {
	f := NewFake()
	if !f.IntsEnabled() {
		t.Fatal("expected ints enabled initially")
	}
	was := f.DisableInts()
	if !was {
		t.Fatal("expected DisableInts to report prior state true")
	}
	if f.IntsEnabled() {
		t.Fatal("expected ints disabled")
	}
	f.RestoreInts(was)
	if !f.IntsEnabled() {
		t.Fatal("expected ints restored to enabled")
	}
}

func TestFakeCr3RoundTrip(t *testing.T) {
	f := NewFake()
	f.Lcr3(0x1000)
	if got := f.Rcr3(); got != 0x1000 {
		t.Fatalf("Rcr3() = %#x, want 0x1000", got)
	}
}

func TestFakeInvlPgLog(t *testing.T) {
	f := NewFake()
	f.InvlPg(0x2000)
	f.InvlPg(0x3000)
	log := f.InvlPgLog()
	if len(log) != 2 || log[0] != 0x2000 || log[1] != 0x3000 {
		t.Fatalf("unexpected invlpg log: %v", log)
	}
}

func TestBindCurrentPanicsUnbound(t *testing.T) {
	saved := current
	current = nil
	defer func() { current = saved }()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling Current before Bind")
		}
	}()
	Current()
}

func TestBindCurrent(t *testing.T) {
	f := NewFake()
	Bind(f)
	if Current() != f {
		t.Fatal("Current() did not return the bound CPU")
	}
}
