// Package server exposes a session over a JSON API and streams event bus
// updates to websocket clients.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/session"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval  = 3 * time.Second
	writeWait     = 10 * time.Second
	readLimit     = 4096
	maxUploadSize = 64 << 20
)

type Config struct {
	Session *session.Session
	// Bus feeds /api/events. Without it the endpoint only sends status.
	Bus    *eventbus.Controller
	Logger logrus.FieldLogger
	Now    func() time.Time
}

type Server struct {
	sess     *session.Session
	bus      *eventbus.Controller
	log      logrus.FieldLogger
	now      func() time.Time
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	l   net.Listener
	srv *http.Server

	mu      sync.Mutex
	clients map[string]*Client
}

type Client struct {
	c    *websocket.Conn
	addr string
}

func New(cfg Config) *Server {
	s := &Server{
		sess:    cfg.Session,
		bus:     cfg.Bus,
		log:     cfg.Logger,
		now:     cfg.Now,
		mux:     http.NewServeMux(),
		clients: make(map[string]*Client),
	}
	if s.log == nil {
		s.log = debug.Logger
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: sameHost,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/trace", s.handleTraceStatus)
	s.mux.HandleFunc("POST /api/trace", s.handleTraceUpload)
	s.mux.HandleFunc("DELETE /api/trace", s.handleTraceClear)
	s.mux.HandleFunc("GET /api/sections/{kind}", s.handleSection)
	s.mux.HandleFunc("GET /api/config", s.handleConfigStats)
	s.mux.HandleFunc("POST /api/config", s.handleConfigLoad)
	s.mux.HandleFunc("GET /api/describe", s.handleDescribe)
	s.mux.HandleFunc("GET /api/views", s.handleViews)
	s.mux.HandleFunc("GET /api/export/{view}", s.handleExport)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Listen binds addr and serves in the background until Close.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.l = l
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.run()
	return nil
}

func (s *Server) run() {
	s.log.WithField("addr", s.l.Addr().String()).Info("http server listening")
	if err := s.srv.Serve(s.l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.WithError(err).Error("http server stopped")
	}
}

// Addr is the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.l == nil {
		return ""
	}
	return s.l.Addr().String()
}

// Close stops accepting requests and disconnects websocket clients.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.c.Close()
	}
	s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return websocket.IsWebSocketUpgrade(r) && originHost(origin) == r.Host
}
