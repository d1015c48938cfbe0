package relay

import "testing"

func TestRegistry_IdentityMapping(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.SetIdentity("c1", "a@x.com")

	if got, ok := r.IdentityOf("c1"); !ok || got != "a@x.com" {
		t.Fatalf("IdentityOf(c1) = %q, %v", got, ok)
	}
	if got, ok := r.ConnectionOf("a@x.com"); !ok || got != "c1" {
		t.Fatalf("ConnectionOf(a@x.com) = %q, %v", got, ok)
	}
}

func TestRegistry_LastJoinWins(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.Register("c2")
	r.SetIdentity("c1", "a@x.com")
	r.SetIdentity("c2", "a@x.com")

	if got, ok := r.ConnectionOf("a@x.com"); !ok || got != "c2" {
		t.Fatalf("ConnectionOf(a@x.com) = %q, %v, want c2", got, ok)
	}
	if _, ok := r.IdentityOf("c1"); ok {
		t.Fatalf("c1 should have lost its identity")
	}
}

func TestRegistry_RebindConnectionDropsOldIdentity(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.SetIdentity("c1", "a@x.com")
	r.SetIdentity("c1", "b@x.com")

	if _, ok := r.ConnectionOf("a@x.com"); ok {
		t.Fatalf("a@x.com should no longer resolve")
	}
	if got, ok := r.ConnectionOf("b@x.com"); !ok || got != "c1" {
		t.Fatalf("ConnectionOf(b@x.com) = %q, %v", got, ok)
	}
	if got, _ := r.IdentityOf("c1"); got != "b@x.com" {
		t.Fatalf("IdentityOf(c1) = %q, want b@x.com", got)
	}
}

func TestRegistry_UnregisterCleansBothMaps(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.SetIdentity("c1", "a@x.com")
	r.Unregister("c1")

	if r.Known("c1") {
		t.Fatalf("c1 still known after unregister")
	}
	if _, ok := r.IdentityOf("c1"); ok {
		t.Fatalf("identity survived unregister")
	}
	if _, ok := r.ConnectionOf("a@x.com"); ok {
		t.Fatalf("reverse mapping survived unregister")
	}
}

func TestRegistry_NoOps(t *testing.T) {
	r := NewRegistry()

	// None of these may panic or create state.
	r.Unregister("ghost")
	r.SetIdentity("ghost", "a@x.com")

	if _, ok := r.ConnectionOf("a@x.com"); ok {
		t.Fatalf("SetIdentity on unknown connection must be a no-op")
	}
}

func TestRegistry_UnregisterDoesNotStealNewerBinding(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.Register("c2")
	r.SetIdentity("c1", "a@x.com")
	r.SetIdentity("c2", "a@x.com")

	// c1 disconnects after the identity moved to c2.
	r.Unregister("c1")

	if got, ok := r.ConnectionOf("a@x.com"); !ok || got != "c2" {
		t.Fatalf("ConnectionOf(a@x.com) = %q, %v, want c2", got, ok)
	}
}
