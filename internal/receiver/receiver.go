// Package receiver implements the one-slot channel buffers that sit on each
// input link. Read semantics depend on the link's signal kind.
package receiver

import (
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simerr"
)

// Token is the value carried on a channel.
type Token = float64

// Receiver is a one-slot buffer on one input channel.
type Receiver interface {
	// Put stores a token. It never blocks and never fails.
	Put(v Token)

	// Get reads the buffered token. An empty buffer yields EMPTY_READ.
	Get() (Token, error)

	// HasToken reports whether Get would succeed.
	HasToken() bool

	// HasRoom is always true: a put overwrites.
	HasRoom() bool

	// Reset empties the buffer.
	Reset()

	// Kind returns the signal kind this receiver implements.
	Kind() signal.Kind
}

// New returns a receiver for kind. Unknown is treated as continuous.
func New(kind signal.Kind, port string) Receiver {
	if kind == signal.Discrete {
		return &Discrete{port: port}
	}
	return &Continuous{port: port}
}

// Continuous holds the latest value. Reads do not consume it.
type Continuous struct {
	port  string
	value Token
	set   bool
}

func (r *Continuous) Put(v Token) {
	r.value = v
	r.set = true
}

func (r *Continuous) Get() (Token, error) {
	if !r.set {
		return 0, simerr.NewEmptyRead(r.port)
	}
	return r.value, nil
}

func (r *Continuous) HasToken() bool { return r.set }

func (r *Continuous) HasRoom() bool { return true }

func (r *Continuous) Reset() {
	r.value = 0
	r.set = false
}

func (r *Continuous) Kind() signal.Kind { return signal.Continuous }

// Discrete holds at most one event. A read consumes it; a second read
// without an intervening put fails with EMPTY_READ. A put over an unread
// event replaces it.
type Discrete struct {
	port    string
	value   Token
	pending bool
}

func (r *Discrete) Put(v Token) {
	r.value = v
	r.pending = true
}

func (r *Discrete) Get() (Token, error) {
	if !r.pending {
		return 0, simerr.NewEmptyRead(r.port)
	}
	r.pending = false
	return r.value, nil
}

func (r *Discrete) HasToken() bool { return r.pending }

func (r *Discrete) HasRoom() bool { return true }

func (r *Discrete) Reset() {
	r.value = 0
	r.pending = false
}

func (r *Discrete) Kind() signal.Kind { return signal.Discrete }
