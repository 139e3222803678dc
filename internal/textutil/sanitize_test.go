package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "selfie.jpg", want: "selfie.jpg"},
		{name: "trims", in: "  selfie.jpg ", want: "selfie.jpg"},
		{name: "unix path", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\ana\foto.png`, want: "foto.png"},
		{name: "unsafe chars", in: `a:b*c?"d<e>|.jpg`, want: "a-b-cde.jpg"},
		{name: "control chars", in: "bad\x00name\n.jpg", want: "badname.jpg"},
		{name: "empty", in: "", want: "fallback.jpg"},
		{name: "dots only", in: "..", want: "fallback.jpg"},
		{name: "trailing slash", in: "dir/", want: "dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.in, "fallback.jpg"); got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameCapsLength(t *testing.T) {
	got := SanitizeFileName(strings.Repeat("ñ", 100)+".jpeg", "x")
	if n := utf8.RuneCountInString(got); n != maxFileNameRunes {
		t.Fatalf("expected %d runes, got %d (%q)", maxFileNameRunes, n, got)
	}
	if !strings.HasSuffix(got, ".jpeg") {
		t.Fatalf("expected extension kept, got %q", got)
	}
}
