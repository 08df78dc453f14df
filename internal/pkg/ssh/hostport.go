package ssh

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"swarm-deploy/pkg/utils"
)

// ParseHostPort splits "host[:port]" into its parts. The port defaults to 22.
// Bracketed and bare IPv6 literals are accepted.
func ParseHostPort(raw string) (string, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, fmt.Errorf("host cannot be empty")
	}

	if !strings.Contains(raw, ":") {
		return raw, DefaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// "::1" and friends carry no port
		if ip := net.ParseIP(strings.Trim(raw, "[]")); ip != nil {
			return ip.String(), DefaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid host %q: %v", raw, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid host %q: missing hostname", raw)
	}

	port, err := utils.ParsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
