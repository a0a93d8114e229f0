package transcript_test

import (
	"testing"

	"github.com/MrWong99/signbridge/pkg/transcript"
)

func TestRepairUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "hello", "hello"},
		{"empty", "", ""},
		{"mojibake umlaut", "Ã¼ber", "über"},
		{"mojibake japanese", "ã\u0081\u0093ã\u0082\u0093ã\u0081«ã\u0081¡ã\u0081¯", "こんにちは"},
		{"already correct latin", "über", "über"},
		{"already correct cjk", "你好", "你好"},
		{"mixed ranges", "Ã¼ 你", "Ã¼ 你"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := transcript.RepairUTF8(tc.in); got != tc.want {
				t.Errorf("RepairUTF8(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
