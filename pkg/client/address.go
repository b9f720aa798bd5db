package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultTCPPort = "5555"
	defaultSSHPort = "5522"
	defaultWSPort  = "8080"
	dialTimeout    = 5 * time.Second
)

// dialConfig describes how to reach a server address
type dialConfig struct {
	display string // Display address with scheme
	raw     string // Raw host:port without scheme
	dial    func() (io.ReadWriteCloser, error)
}

// parseServerAddress accepts host:port (TCP) or tcp://, ssh://user@ and ws:// URLs
func parseServerAddress(raw string, opts Options) (*dialConfig, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("server address is empty")
	}

	scheme := "tcp"
	user := ""
	path := ""
	hostPort := trimmed
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", raw, err)
		}
		if u.Scheme != "" {
			scheme = strings.ToLower(u.Scheme)
		}
		if u.User != nil {
			user = u.User.Username()
		}
		hostPort = u.Host
		path = u.Path
	}

	switch scheme {
	case "tcp":
		host, port, err := splitHostPortWithDefault(hostPort, defaultTCPPort)
		if err != nil {
			return nil, err
		}
		address := net.JoinHostPort(host, port)
		return &dialConfig{
			display: address,
			raw:     address,
			dial: func() (io.ReadWriteCloser, error) {
				return dialTCP(address)
			},
		}, nil

	case "ssh":
		host, port, err := splitHostPortWithDefault(hostPort, defaultSSHPort)
		if err != nil {
			return nil, err
		}
		if user == "" {
			user = defaultSSHUser()
		}
		address := net.JoinHostPort(host, port)
		return &dialConfig{
			display: fmt.Sprintf("ssh://%s@%s", user, address),
			raw:     address,
			dial: func() (io.ReadWriteCloser, error) {
				return dialSSH(user, address, opts)
			},
		}, nil

	case "ws":
		host, port, err := splitHostPortWithDefault(hostPort, defaultWSPort)
		if err != nil {
			return nil, err
		}
		if path == "" {
			path = "/ws"
		}
		address := net.JoinHostPort(host, port)
		target := (&url.URL{Scheme: "ws", Host: address, Path: path}).String()
		return &dialConfig{
			display: target,
			raw:     address,
			dial: func() (io.ReadWriteCloser, error) {
				return dialWebSocket(target)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported server scheme %q", scheme)
	}
}

func splitHostPortWithDefault(hostPort, defaultPort string) (string, string, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return "", "", errors.New("missing host in server address")
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err == nil {
		return host, port, nil
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) && strings.Contains(strings.ToLower(addrErr.Err), "missing port") {
		host = hostPort
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		}
		return host, defaultPort, nil
	}

	return "", "", err
}

func defaultSSHUser() string {
	if user := os.Getenv("ECHOCHAT_SSH_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anonymous"
}

func dialTCP(address string) (io.ReadWriteCloser, error) {
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}
