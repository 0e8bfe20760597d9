package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultConnectPort is assumed when a CONNECT authority omits the port.
const defaultConnectPort = 443

// ParseConnectAuthority parses the authority of a CONNECT request line
// into host and port.
//
// Accepted forms: "host:port", bare "host" (port 443), bracketed IPv6
// "[addr]:port" and "[addr]". Rejected: empty input, missing host,
// non-numeric ports, ports outside 1-65535, unterminated brackets,
// trailing text after "]", and unbracketed IPv6 literals (their colons
// split ambiguously).
func ParseConnectAuthority(s string) (string, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("empty connect authority")
	}

	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("unterminated bracket in authority %q", s)
		}
		host := s[1:end]
		if host == "" {
			return "", 0, fmt.Errorf("missing host in authority %q", s)
		}
		rest := s[end+1:]
		if rest == "" {
			return host, defaultConnectPort, nil
		}
		if rest[0] != ':' {
			return "", 0, fmt.Errorf("unexpected text after bracket in authority %q", s)
		}
		port, err := parsePort(rest[1:])
		if err != nil {
			return "", 0, fmt.Errorf("invalid port in authority %q: %w", s, err)
		}
		return host, port, nil
	}

	if strings.Count(s, ":") > 1 {
		return "", 0, fmt.Errorf("unbracketed IPv6 literal in authority %q", s)
	}

	host, portStr, found := strings.Cut(s, ":")
	if host == "" {
		return "", 0, fmt.Errorf("missing host in authority %q", s)
	}
	if !found {
		return host, defaultConnectPort, nil
	}

	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in authority %q: %w", s, err)
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty port")
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("non-numeric port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
