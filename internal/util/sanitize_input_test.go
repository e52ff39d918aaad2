package util

import "testing"

func TestSanitizeInput(t *testing.T) {
	t.Parallel()

	got := SanitizeInput("  <b>Ada</b> ")
	want := "&lt;b&gt;Ada&lt;/b&gt;"
	if got != want {
		t.Errorf("SanitizeInput() = %q, want %q", got, want)
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Errorf("NormalizeEmail() = %q, want %q", got, "ada@example.com")
	}
}

func TestContainsSuspicious(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{in: "Ada Lovelace", want: false},
		{in: "<SCRIPT>alert(1)</script>", want: true},
		{in: "img onerror=boom", want: true},
		{in: "costs $5 {approx}", want: false},
	}
	for _, tt := range tests {
		if got := ContainsSuspicious(tt.in); got != tt.want {
			t.Errorf("ContainsSuspicious(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()

	if got := MaskPhone("+15551234567"); got != "********4567" {
		t.Errorf("MaskPhone() = %q, want %q", got, "********4567")
	}
	if got := MaskPhone("123"); got != "****" {
		t.Errorf("MaskPhone() = %q, want %q", got, "****")
	}
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		want  string
	}{
		{token: "APA91bHun4MxP5egoKMwt2KZFBaFUH", want: "******FBaFUH"},
		{token: "abc", want: "******"},
		{token: "abcdef", want: "******"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.token); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
