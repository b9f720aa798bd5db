package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// serverVersionPrefix is the SSH banner advertised by echochat servers
const serverVersionPrefix = "SSH-2.0-EchoChat"

func dialSSH(user, address string, opts Options) (io.ReadWriteCloser, error) {
	hostKeyCallback, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	netConn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, err
	}

	// Bound the handshake
	if err := netConn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(netConn, address, config)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}

	if err := netConn.SetDeadline(time.Time{}); err != nil {
		clientConn.Close()
		return nil, fmt.Errorf("failed to clear connection deadline: %w", err)
	}

	banner := string(clientConn.ServerVersion())
	if !strings.HasPrefix(banner, serverVersionPrefix) {
		clientConn.Close()
		return nil, fmt.Errorf("remote server advertised %q; expected an echochat server (banner prefix %q)", banner, serverVersionPrefix)
	}

	client := ssh.NewClient(clientConn, chans, reqs)
	channel, requests, err := client.OpenChannel("session", nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open session channel: %w", err)
	}
	go ssh.DiscardRequests(requests)

	return &sshClientConn{channel: channel, client: client}, nil
}

// hostKeyCallback verifies server keys against the user's known_hosts files
func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	paths := knownHostPaths(opts.KnownHostsPath)
	if len(paths) == 0 {
		return nil, errors.New("no known_hosts file found; add the server key or connect with host key checking disabled")
	}
	callback, err := knownhosts.New(paths...)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return callback, nil
}

func knownHostPaths(explicit string) []string {
	candidates := []string{explicit}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".echochat", "known_hosts"),
			filepath.Join(home, ".ssh", "known_hosts"))
	}

	var paths []string
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}

type sshClientConn struct {
	channel ssh.Channel
	client  *ssh.Client
	once    sync.Once
}

func (c *sshClientConn) Read(b []byte) (int, error) {
	return c.channel.Read(b)
}

func (c *sshClientConn) Write(b []byte) (int, error) {
	return c.channel.Write(b)
}

func (c *sshClientConn) Close() error {
	var err error
	c.once.Do(func() {
		if closeErr := c.channel.Close(); closeErr != nil && !errors.Is(closeErr, io.EOF) {
			err = closeErr
		}
		c.client.Close()
	})
	return err
}
