package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// sshListener accepts SSH connections and hands out each "session" channel
// as a Conn. There is no SSH-level authentication: participants identify
// themselves with the chat login line like every other transport.
type sshListener struct {
	listener  net.Listener
	config    *ssh.ServerConfig
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

// listenSSH starts the SSH transport on port using the host key at keyPath
func listenSSH(port int, keyPath string) (Listener, error) {
	hostKey, err := loadOrGenerateHostKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load host key: %w", err)
	}

	config := &ssh.ServerConfig{
		NoClientAuth:  true,
		ServerVersion: "SSH-2.0-EchoChat",
	}
	config.AddHostKey(hostKey)

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &sshListener{
		listener: listener,
		config:   config,
		conns:    make(chan Conn),
		done:     make(chan struct{}),
	}
	go l.acceptLoop()

	log.Printf("SSH transport listening on %s", listener.Addr())
	return l, nil
}

func (l *sshListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *sshListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.listener.Close()
	})
	return err
}

func (l *sshListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *sshListener) Transport() string {
	return TransportSSH
}

// acceptLoop accepts raw TCP connections and performs the SSH handshake
func (l *sshListener) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				log.Printf("SSH accept error: %v", err)
				continue
			}
		}

		go l.handleConnection(conn)
	}
}

// handleConnection handles a single SSH connection
func (l *sshListener) handleConnection(conn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, l.config)
	if err != nil {
		debugLog.Printf("SSH handshake failed: %v", err)
		conn.Close()
		return
	}

	// Discard global out-of-band requests
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		// Only "session" channels carry chat lines
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			log.Printf("Could not accept channel: %v", err)
			continue
		}
		go handleSSHChannelRequests(requests)

		c := &sshChannelConn{channel: channel, conn: sshConn}
		select {
		case l.conns <- c:
		case <-l.done:
			c.Close()
			return
		}
	}
}

func handleSSHChannelRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "shell", "pty-req", "env", "window-change":
			if req.WantReply {
				req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// sshChannelConn adapts an SSH session channel to Conn
type sshChannelConn struct {
	channel ssh.Channel
	conn    *ssh.ServerConn
}

func (c *sshChannelConn) Read(b []byte) (int, error) {
	return c.channel.Read(b)
}

func (c *sshChannelConn) Write(b []byte) (int, error) {
	return c.channel.Write(b)
}

// Close closes the channel and the SSH connection carrying it
func (c *sshChannelConn) Close() error {
	c.channel.Close()
	return c.conn.Close()
}

func (c *sshChannelConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// loadOrGenerateHostKey reads the PEM host key at keyPath, creating an
// ed25519 key there on first use
func loadOrGenerateHostKey(keyPath string) (ssh.Signer, error) {
	if strings.TrimSpace(keyPath) == "" {
		return nil, fmt.Errorf("ssh host key path is empty; set [server].ssh_host_key or remove it to use the default (%s)", DefaultConfig().SSHHostKeyPath)
	}
	if rest, ok := strings.CutPrefix(keyPath, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		keyPath = filepath.Join(home, rest)
	}

	keyBytes, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse host key %s: %w", keyPath, err)
		}
		debugLog.Printf("Loaded SSH host key from %s", keyPath)
		return signer, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read host key: %w", err)
	}

	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(private, "echochat host key")
	if err != nil {
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	encoded := pem.EncodeToMemory(block)

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create host key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, encoded, 0600); err != nil {
		return nil, fmt.Errorf("write host key: %w", err)
	}
	log.Printf("Generated new SSH host key at %s", keyPath)

	return ssh.ParsePrivateKey(encoded)
}
