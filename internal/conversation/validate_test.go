package conversation

import (
	"strings"
	"testing"
)

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid short", "hello", false},
		{"empty", "", true},
		{"max chars ok", strings.Repeat("a", MaxBodyChars), false},
		{"too many chars", strings.Repeat("a", MaxBodyChars+1), true},
		{"too many bytes", strings.Repeat("é", MaxBodyChars+100), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
		{"unicode ok", "héllo wörld 你好", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBody(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBody(%q len=%d) err=%v, wantErr=%v",
					tt.name, len(tt.body), err, tt.wantErr)
			}
		})
	}
}
