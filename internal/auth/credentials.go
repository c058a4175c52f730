package auth

import (
	"sync"

	"github.com/chatforge/realtime-console/internal/core/ports"
)

// StaticCredentials is a CredentialProvider whose token never changes.
type StaticCredentials string

var _ ports.CredentialProvider = StaticCredentials("")

func (c StaticCredentials) Token() string { return string(c) }

func (c StaticCredentials) Subscribe(func(token string)) func() {
	return func() {}
}

// WatchableCredentials is a CredentialProvider that notifies subscribers
// whenever the token is replaced, letting a live connection re-authenticate
// without reconnecting.
type WatchableCredentials struct {
	mu     sync.Mutex
	token  string
	subs   map[uint64]func(string)
	nextID uint64
}

var _ ports.CredentialProvider = (*WatchableCredentials)(nil)

// NewWatchableCredentials creates a provider seeded with an initial token.
func NewWatchableCredentials(token string) *WatchableCredentials {
	return &WatchableCredentials{
		token: token,
		subs:  make(map[uint64]func(string)),
	}
}

// Token returns the current token.
func (c *WatchableCredentials) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Set replaces the token and notifies every subscriber. Setting the same
// token again is a no-op.
func (c *WatchableCredentials) Set(token string) {
	c.mu.Lock()
	if token == c.token {
		c.mu.Unlock()
		return
	}
	c.token = token
	subs := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(token)
	}
}

// Subscribe registers a change callback and returns an unsubscribe function.
func (c *WatchableCredentials) Subscribe(fn func(token string)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
