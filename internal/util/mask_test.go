package util

import "testing"

func TestMaskToken(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "***"},
		{"12345678", "***"},
		{"sk-live-abcdef123456", "sk-l…3456"},
	}
	for _, c := range cases {
		if got := MaskToken(c.in); got != c.want {
			t.Fatalf("MaskToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"ana@example.com", "a…@e….com"},
		{"A@B.CO", "a@b.co"},
		{"not-an-email", "n…l"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
