package services

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare digits", "6281234567890", "6281234567890"},
		{"full jid", "6281234567890@s.whatsapp.net", "6281234567890"},
		{"device suffix", "6281234567890:12@s.whatsapp.net", "6281234567890"},
		{"formatted", "+62 812-3456-7890", "6281234567890"},
		{"whitespace", "  6281234567890  ", "6281234567890"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizePhone(tt.input); got != tt.want {
				t.Errorf("normalizePhone(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripDevicePart(t *testing.T) {
	if got := stripDevicePart("628123:42"); got != "628123" {
		t.Errorf("got %q; want 628123", got)
	}
	if got := stripDevicePart("628123"); got != "628123" {
		t.Errorf("got %q; want 628123", got)
	}
}
