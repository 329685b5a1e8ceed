package main

import (
	"net"
	"strings"
)

// listenURL converts an HTTP listen address into a URL a local client can
// dial. Wildcard hosts are mapped to localhost.
//
//	:8090            -> http://localhost:8090
//	0.0.0.0:8090     -> http://localhost:8090
//	127.0.0.1:8090   -> http://127.0.0.1:8090
//	[::1]:8090       -> http://[::1]:8090
func listenURL(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "http://localhost"
	}
	if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
		return strings.TrimRight(a, "/")
	}

	host, port, err := net.SplitHostPort(a)
	if err != nil {
		return "http://" + a
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
