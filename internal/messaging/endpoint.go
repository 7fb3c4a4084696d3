package messaging

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ValidateEndpoint accepts tcp://host:port endpoints
func ValidateEndpoint(endpoint string) error {
	_, _, err := splitEndpoint(endpoint)
	if err != nil {
		return err
	}
	return nil
}

func splitEndpoint(endpoint string) (host string, port int, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "tcp" {
		return "", 0, fmt.Errorf("invalid endpoint %q: only tcp:// is supported", endpoint)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid endpoint %q: bad port %q", endpoint, portStr)
	}
	return host, port, nil
}
