package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/aeolun/echochat/pkg/client"
)

const echoTimeout = 5 * time.Second

var (
	errRejected     = errors.New("login rejected")
	errDisconnected = errors.New("disconnected")
	errEchoTimeout  = errors.New("no echo")
)

// LoadClient is a fake participant that posts lines and times their echo
type LoadClient struct {
	id       int
	identity string
	conn     *client.Client
	stats    *Stats

	// Content of this client's own lines as broadcast back by the server
	echoes   chan string
	rejected chan string
}

// NewLoadClient dials the server and starts draining broadcasts
func NewLoadClient(id int, serverAddr string, opts client.Options, stats *Stats) (*LoadClient, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	conn, err := client.Dial(serverAddr, opts)
	if err != nil {
		stats.dialFailures.Add(1)
		return nil, fmt.Errorf("dial: %w", err)
	}

	lc := &LoadClient{
		id:       id,
		identity: generateUsername(id),
		conn:     conn,
		stats:    stats,
		echoes:   make(chan string, 16),
		rejected: make(chan string, 1),
	}
	go lc.drain()
	return lc, nil
}

// drain reads every broadcast so the server never blocks on this client
func (lc *LoadClient) drain() {
	for line := range lc.conn.Incoming() {
		lc.stats.linesReceived.Add(1)
		switch {
		case line.Kind == client.KindError:
			select {
			case lc.rejected <- line.Content:
			default:
			}
		case line.Kind == client.KindChat && line.Sender == lc.identity:
			select {
			case lc.echoes <- line.Content:
			default:
			}
		}
	}
	close(lc.echoes)
}

// Connect logs in and waits for the first line to come back
func (lc *LoadClient) Connect() error {
	if err := lc.conn.Login(lc.identity); err != nil {
		return err
	}
	if err := lc.post("hello from " + lc.identity); err != nil {
		if errors.Is(err, errRejected) {
			lc.stats.loginRejected.Add(1)
		}
		return fmt.Errorf("confirm login: %w", err)
	}
	return nil
}

// post sends content and blocks until the server echoes it back
func (lc *LoadClient) post(content string) error {
	if err := lc.conn.Send(content); err != nil {
		return err
	}

	timeout := time.NewTimer(echoTimeout)
	defer timeout.Stop()
	for {
		select {
		case echoed, ok := <-lc.echoes:
			if !ok {
				return errDisconnected
			}
			if echoed == content {
				return nil
			}
		case reason := <-lc.rejected:
			return fmt.Errorf("%w: %s", errRejected, reason)
		case <-timeout.C:
			return fmt.Errorf("%w within %v", errEchoTimeout, echoTimeout)
		}
	}
}

// PostRandomMessage posts a lorem line and records its round trip
func (lc *LoadClient) PostRandomMessage() error {
	content := fmt.Sprintf("%s [%d]", randomMessage(), time.Now().UnixNano())

	start := time.Now()
	err := lc.post(content)
	switch {
	case err == nil:
		lc.stats.recordSuccess(time.Since(start).Microseconds())
	case errors.Is(err, errDisconnected), errors.Is(err, client.ErrClosed):
		lc.stats.recordDisconnection()
	case errors.Is(err, errEchoTimeout):
		lc.stats.recordTimeout()
	default:
		lc.stats.recordSendFailure()
	}
	return err
}

// Run posts until duration elapses, sleeping a random delay between posts
func (lc *LoadClient) Run(duration, minDelay, maxDelay, shutdownDelay time.Duration, disconnectTimes chan<- time.Time) {
	defer func() {
		lc.conn.Close()

		select {
		case disconnectTimes <- time.Now():
		default:
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Client %d] PANIC: %v", lc.id, r)
		}
	}()

	endTime := time.Now().Add(duration)
	for time.Now().Before(endTime) {
		if err := lc.PostRandomMessage(); err != nil {
			debugLogger.Printf("[Client %d] post failed: %v", lc.id, err)
			if errors.Is(err, errDisconnected) || errors.Is(err, client.ErrClosed) {
				return
			}
		}

		delay := minDelay
		if maxDelay > minDelay {
			delay += time.Duration(rand.Int63n(int64(maxDelay - minDelay)))
		}
		time.Sleep(delay)
	}

	if shutdownDelay > 0 {
		time.Sleep(shutdownDelay)
	}
}
