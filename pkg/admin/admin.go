// Package admin serves a read-only HTTP API for operators: health, server
// status, participants, the journal and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/echochat/pkg/chat"
	"github.com/aeolun/echochat/pkg/journal"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// StatusSource reports the chat server's state
type StatusSource interface {
	Status() chat.Status
	Participants() []string
}

// JournalReader lists recent journal entries
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter builds the admin routes. jr may be nil when journaling is
// disabled; gatherer may be nil to omit /metrics.
func NewRouter(src StatusSource, gatherer prometheus.Gatherer, jr JournalReader) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "echochat",
		})
	})

	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})

	r.GET("/api/participants", func(c *gin.Context) {
		participants := src.Participants()
		if participants == nil {
			participants = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"participants": participants})
	})

	r.GET("/api/journal", func(c *gin.Context) {
		if jr == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultJournalLimit)))
		if err != nil || limit < 1 || limit > maxJournalLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxJournalLimit)})
			return
		}
		entries, err := jr.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Printf("Admin: failed to read journal: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
			return
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

// Server runs the admin router on its own port
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Start listens on port and serves handler in the background
func Start(port int, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on admin port %d: %w", port, err)
	}

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Admin HTTP server error: %v", err)
		}
	}()

	log.Printf("Admin API listening on %s", listener.Addr())
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
