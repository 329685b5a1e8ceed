package main

import "testing"

func TestListenURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: "http://localhost"},
		{name: "port only", in: ":8090", want: "http://localhost:8090"},
		{name: "wildcard ipv4", in: "0.0.0.0:8090", want: "http://localhost:8090"},
		{name: "wildcard ipv6", in: "[::]:8090", want: "http://localhost:8090"},
		{name: "ipv4", in: "127.0.0.1:8090", want: "http://127.0.0.1:8090"},
		{name: "ipv6", in: "[::1]:8090", want: "http://[::1]:8090"},
		{name: "already url", in: "http://127.0.0.1:8090/", want: "http://127.0.0.1:8090"},
		{name: "no port", in: "example.internal", want: "http://example.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listenURL(tt.in); got != tt.want {
				t.Fatalf("listenURL(%q)=%q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
