package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Dana  ", "Dana"},
		{"<b>Dana</b>", "Dana"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;spring_sale", "alert(1)spring_sale"},
		{"rock & roll", "rock & roll"},
	}
	for _, tc := range tests {
		if got := Text(tc.in); got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("expected short input unchanged, got %q", got)
	}
	// "é" is two bytes; cutting at 2 would split it.
	if got := Truncate("aé", 2); got != "a" {
		t.Fatalf("expected cut before multi-byte rune, got %q", got)
	}
}
