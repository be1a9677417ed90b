// Package envconfig reads Drift's environment configuration.
package envconfig

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Var reads an environment variable, trimming whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Host returns the bind/connect address configured through DRIFT_HOST.
// The format is <scheme>://<host>:<port>; every part is optional and the
// default is http://127.0.0.1:11435.
func Host() *url.URL {
	defaultPort := "11435"

	s := Var("DRIFT_HOST")
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
	}
}

// WorkerName returns the name this process announces to the cluster,
// configured through DRIFT_WORKER; the default is the local hostname.
func WorkerName() string {
	if name := Var("DRIFT_WORKER"); name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return hostname
}
