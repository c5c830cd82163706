package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"golang.org/x/sync/errgroup"
)

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.log.WithError(err).Debug("websocket upgrade")
		return
	}
	c := &Client{c: conn, addr: conn.RemoteAddr().String()}
	if !s.addClient(c) {
		s.log.WithField("client", c.addr).Warn("client already connected")
		conn.Close()
		return
	}
	s.log.WithField("client", c.addr).Info("events client connected")
	s.handleClient(r.Context(), c)
}

func (s *Server) addClient(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.clients[c.addr]; found {
		return false
	}
	s.clients[c.addr] = c
	return true
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.addr)
	s.mu.Unlock()
}

func (s *Server) handleClient(parent context.Context, c *Client) {
	defer func() {
		s.log.WithField("client", c.addr).Info("events client disconnected")
		c.c.Close()
		s.removeClient(c)
	}()

	var events chan eventbus.EBusMessage
	if s.bus != nil {
		events = s.bus.SubscribeAll()
		defer s.bus.UnsubscribeAll(events)
	}

	cctx, cancel := context.WithCancel(parent)
	defer cancel()
	errg, ctx := errgroup.WithContext(cctx)

	// Reader. Clients only send "quit"; pongs are handled by gorilla.
	errg.Go(func() error {
		defer cancel()
		c.c.SetReadLimit(readLimit)
		for {
			_, msg, err := c.c.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if strings.EqualFold(strings.TrimSpace(string(msg)), "quit") {
				return nil
			}
		}
	})

	// Writer. Only this goroutine writes to the connection. Closing it on
	// the way out unblocks the reader.
	errg.Go(func() error {
		defer func() {
			cancel()
			c.c.Close()
		}()
		st := s.sess.Status()
		if err := c.write(&Message{Type: MessageTypeStatus, Status: &st}); err != nil {
			return err
		}
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				c.c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return nil
			case m, ok := <-events:
				if !ok {
					return nil
				}
				if err := c.write(&Message{Type: MessageTypeEvent, Topic: m.Topic, Data: m.Data}); err != nil {
					return err
				}
			case <-t.C:
				if err := c.write(&Message{Type: MessageTypePing}); err != nil {
					return err
				}
			}
		}
	})

	if err := errg.Wait(); err != nil {
		s.log.WithError(err).WithField("client", c.addr).Warn("error handling client")
	}
}

func (c *Client) write(m *Message) error {
	c.c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.c.WriteJSON(m)
}
