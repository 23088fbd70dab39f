package chat

import "testing"

func TestParseUrgency(t *testing.T) {
	cases := map[string]UrgencyLevel{
		"low":      UrgencyLow,
		" HIGH ":   UrgencyHigh,
		"Medium":   UrgencyMedium,
		"critical": UrgencyMedium,
		"":         UrgencyMedium,
	}
	for raw, want := range cases {
		if got := ParseUrgency(raw); got != want {
			t.Fatalf("ParseUrgency(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestNewMessageAssignsIdentity(t *testing.T) {
	a := NewMessage(RoleUser, "hello")
	b := NewMessage(RoleUser, "hello")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
	if !a.Role.Valid() || Role("doctor").Valid() {
		t.Fatal("unexpected role validity")
	}
}
