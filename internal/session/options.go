package session

import (
	"time"

	"github.com/1ureka/blesock/internal/loop"
)

const (
	// DefaultHostAcceptanceTimeout bounds how long a host waits for a new
	// connection to authenticate.
	DefaultHostAcceptanceTimeout = 19 * time.Second
	// DefaultGuestAcceptanceTimeout bounds how long a guest waits between
	// Connect and admission.
	DefaultGuestAcceptanceTimeout = 20 * time.Second
)

type options struct {
	executor          loop.Executor
	acceptanceTimeout time.Duration
	maxPlayers        int
}

// Option configures a Host or Guest.
type Option func(*options)

// WithExecutor runs events and notifications on e instead of a private
// loop.Loop.
func WithExecutor(e loop.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithAcceptanceTimeout overrides the authentication deadline. Zero or a
// negative value disables it.
func WithAcceptanceTimeout(d time.Duration) Option {
	return func(o *options) { o.acceptanceTimeout = d }
}

// WithMaxPlayers caps a host's roster, host included. Zero means no cap
// beyond the identity pool.
func WithMaxPlayers(n int) Option {
	return func(o *options) { o.maxPlayers = n }
}

func buildOptions(timeout time.Duration, opts []Option) options {
	o := options{acceptanceTimeout: timeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
