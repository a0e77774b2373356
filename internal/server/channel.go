// Package server couples the contact core to the external rod solver: a
// single rendezvous channel carrying empty synchronization pulses and the
// step state machine driven by them.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Channel is the strictly alternating request/reply rendezvous with the
// solver. Recv blocks until the next request pulse; Send delivers the reply.
// There are no timeouts: a lost peer is a fatal condition, not a retriable
// one.
type Channel interface {
	Recv() error
	Send() error
	Close() error
}

// ErrProtocol marks a violation of the alternating pulse protocol.
var ErrProtocol = errors.New("server: request/reply alternation violated")

// WSChannel serves the rendezvous over a single websocket connection. The
// payload of every message is empty; all data moves through the shared
// buffers.
type WSChannel struct {
	upgrader websocket.Upgrader
	srv      *http.Server
	listener net.Listener
	logger   *log.Logger

	connCh chan *websocket.Conn
	conn   *websocket.Conn

	mu     sync.Mutex
	paired bool

	awaitingReply bool
}

// ListenWS starts serving the rendezvous endpoint on addr. Exactly one peer
// is accepted; later connection attempts are refused.
func ListenWS(addr string, logger *log.Logger) (*WSChannel, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	c := &WSChannel{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		listener: listener,
		logger:   logger,
		connCh:   make(chan *websocket.Conn, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleConnect)
	c.srv = &http.Server{Handler: mux}
	go func() {
		if err := c.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Printf("[WS] serve error: %v", err)
		}
	}()
	logger.Printf("[WS] listening on %s", listener.Addr())
	return c, nil
}

func (c *WSChannel) handleConnect(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	if c.paired {
		c.mu.Unlock()
		http.Error(w, "solver already connected", http.StatusConflict)
		return
	}
	c.paired = true
	c.mu.Unlock()

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Printf("[WS] upgrade failed: %v", err)
		c.mu.Lock()
		c.paired = false
		c.mu.Unlock()
		return
	}
	c.logger.Printf("[WS] solver connected from %s", conn.RemoteAddr())
	c.connCh <- conn
}

// Addr returns the bound listen address.
func (c *WSChannel) Addr() net.Addr { return c.listener.Addr() }

func (c *WSChannel) Recv() error {
	if c.conn == nil {
		c.conn = <-c.connCh
	}
	if c.awaitingReply {
		return fmt.Errorf("%w: second request before reply", ErrProtocol)
	}
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("server: reading request pulse: %w", err)
	}
	if len(payload) != 0 {
		return fmt.Errorf("%w: request pulse carries %d payload bytes", ErrProtocol, len(payload))
	}
	c.awaitingReply = true
	return nil
}

func (c *WSChannel) Send() error {
	if !c.awaitingReply {
		return fmt.Errorf("%w: reply without pending request", ErrProtocol)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, nil); err != nil {
		return fmt.Errorf("server: writing reply pulse: %w", err)
	}
	c.awaitingReply = false
	return nil
}

func (c *WSChannel) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return c.srv.Close()
}
