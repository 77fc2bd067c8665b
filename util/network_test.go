package util

import (
	"testing"
)

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"1.2.3.4", 22, "1.2.3.4:22"},
		{"::1", 830, "[::1]:830"},
		{"ne1.example.net", 10201, "ne1.example.net:10201"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q,%d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
