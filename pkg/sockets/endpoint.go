package sockets

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
)

// Backlog is the listen backlog used for every endpoint.
const Backlog = 500

// Endpoint names.
const (
	PrimaryName   = "main"
	SecondaryName = "http"
)

// Kind identifies the address family of an endpoint.
type Kind string

const (
	KindUnix Kind = "unix"
	KindTCP  Kind = "tcp"
)

// Protocol identifies the wire protocol spoken on an endpoint.
type Protocol string

const (
	ProtocolSession Protocol = "session"
	ProtocolHTTP    Protocol = "http"
)

// Endpoint is a provisioned listening socket.
type Endpoint struct {
	// Name is "main" or "http".
	Name string

	// Address is the advertised address: "unix:/path" or "tcp://127.0.0.1:PORT".
	Address string

	Kind     Kind
	Protocol Protocol

	// Concurrency is the number of workers bound to this endpoint.
	Concurrency int

	// Path is the filesystem path of a unix endpoint, empty for TCP.
	Path string

	mu       sync.Mutex
	file     *os.File
	listener net.Listener
	closed   bool

	// dirs were created for this endpoint and are removed by Close,
	// innermost first.
	dirs []string
}

// ErrClosed is returned by Dup after Close.
var ErrClosed = errors.New("endpoint closed")

// Dup returns a new listener over a duplicate of the endpoint's descriptor.
// Closing the returned listener does not affect the endpoint or any other
// duplicate.
func (e *Endpoint) Dup() (net.Listener, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	ln, err := net.FileListener(e.file)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate %s socket: %w", e.Name, err)
	}
	return ln, nil
}

// Close closes the endpoint and unlinks its path if it is a unix socket,
// together with the directories created for it. Errors are ignored. Safe to call more than once.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	if e.listener != nil {
		_ = e.listener.Close()
	}
	if e.file != nil {
		_ = e.file.Close()
	}
	if e.Path != "" {
		_ = os.Remove(e.Path)
	}
	for _, dir := range e.dirs {
		_ = os.Remove(dir)
	}
}

// String returns the advertisement line body "name;address;protocol;concurrency".
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s;%s;%s;%d", e.Name, e.Address, e.Protocol, e.Concurrency)
}
