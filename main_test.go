package main

import "testing"

func TestDiagURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8090", "http://localhost:8090/diag"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/diag"},
	}
	for _, tt := range tests {
		if got := diagURL(tt.addr); got != tt.want {
			t.Errorf("diagURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
