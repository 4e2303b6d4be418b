package domain

import "testing"

func strPtr(s string) *string { return &s }

func TestSimpleKey(t *testing.T) {
	t.Parallel()

	if got := SimpleKey("chan-1"); got != RegistryKey("chan-1") {
		t.Fatalf("unexpected simple key %q", got)
	}
}

func TestCompositeKey(t *testing.T) {
	t.Parallel()

	if got := CompositeKey("chan-1", strPtr("7")); got != RegistryKey("chan-1:7") {
		t.Fatalf("unexpected composite key %q", got)
	}
	if got := CompositeKey("chan-1", nil); got != RegistryKey("chan-1:null") {
		t.Fatalf("expected null bucket, got %q", got)
	}
	if got := CompositeKey("chan-1", strPtr("  ")); got != RegistryKey("chan-1:null") {
		t.Fatalf("expected blank game to map to null bucket, got %q", got)
	}
}

func TestRegistryKeyBindingID(t *testing.T) {
	t.Parallel()

	if got := RegistryKey("chan-1:7").BindingID(); got != "chan-1" {
		t.Fatalf("unexpected binding id %q", got)
	}
	if got := RegistryKey("chan-1").BindingID(); got != "chan-1" {
		t.Fatalf("unexpected binding id %q", got)
	}
}

func TestRegistryKeyBelongsTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key     RegistryKey
		binding string
		want    bool
	}{
		{RegistryKey("chan-1"), "chan-1", true},
		{RegistryKey("chan-1:7"), "chan-1", true},
		{RegistryKey("chan-1:null"), "chan-1", true},
		{RegistryKey("chan-10"), "chan-1", false},
		{RegistryKey("chan-2:7"), "chan-1", false},
	}
	for _, tc := range cases {
		if got := tc.key.BelongsTo(tc.binding); got != tc.want {
			t.Fatalf("key %q belongs to %q: expected %v, got %v", tc.key, tc.binding, tc.want, got)
		}
	}
}

func TestBindingRegistryKey(t *testing.T) {
	t.Parallel()

	gameBound := Binding{ID: "chan-1", GameID: strPtr("42")}
	if got := gameBound.RegistryKey(strPtr("7")); got != RegistryKey("chan-1") {
		t.Fatalf("game-specific binding must use the simple key, got %q", got)
	}

	lobby := Binding{ID: "chan-2"}
	if got := lobby.RegistryKey(strPtr("7")); got != RegistryKey("chan-2:7") {
		t.Fatalf("general lobby must use the composite key, got %q", got)
	}
	if got := lobby.RegistryKey(nil); got != RegistryKey("chan-2:null") {
		t.Fatalf("general lobby without a detected game must use the null bucket, got %q", got)
	}
}
