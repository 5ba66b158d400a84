package decimate

import "sync/atomic"

// Tokens issues monotonically increasing run ids. Only the most recently
// issued id is current.
type Tokens struct {
	latest atomic.Uint64
}

// Token identifies one run. It is passed into Run and compared at every
// yield point.
type Token struct {
	id  uint64
	src *Tokens
}

// Next invalidates every earlier token and returns a new current one.
func (t *Tokens) Next() Token {
	return Token{id: t.latest.Add(1), src: t}
}

// Current reports whether no newer token has been issued.
func (t Token) Current() bool {
	if t.src == nil {
		return true
	}
	return t.src.latest.Load() == t.id
}

func (t Token) ID() uint64 {
	return t.id
}
