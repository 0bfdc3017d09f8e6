package fingerprint

import "testing"

func TestOfKnownVectors(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", "6c62272e07bb014262b821756295c58d"},
		{"a", "d228cb696f1a8caf78912b704e4a8964"},
		{"The app crashes every time I open settings", "12c65daf41f75b97b1f42f673a45db4e"},
	}
	for _, tt := range tests {
		if got := Of(tt.text).Text(16); got != tt.want {
			t.Fatalf("Of(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestModAndDivMod(t *testing.T) {
	text := "Pricing is too high for small teams"
	if got := Mod(text, 3); got != 2 {
		t.Fatalf("Mod(3) = %d, want 2", got)
	}
	if got := Mod(text, 6); got != 5 {
		t.Fatalf("Mod(6) = %d, want 5", got)
	}
	if got := Mod(text, 10); got != 9 {
		t.Fatalf("Mod(10) = %d, want 9", got)
	}
	if got := DivMod(text, 10, 10); got != 4 {
		t.Fatalf("DivMod(10, 10) = %d, want 4", got)
	}
}

func TestOfIsStable(t *testing.T) {
	first := Of("Love the new dashboard!")
	for i := 0; i < 5; i++ {
		if got := Of("Love the new dashboard!"); got.Cmp(first) != 0 {
			t.Fatalf("fingerprint changed between calls: %s vs %s", got, first)
		}
	}
	if Of("Love the new dashboard!").Cmp(Of("Love the new dashboard")) == 0 {
		t.Fatal("expected different texts to produce different fingerprints")
	}
}
