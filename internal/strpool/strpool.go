// Package strpool interns file-name strings for the Derp runtime.
//
// ExecNodes carry a file-name handle rather than a raw string: there are
// many nodes and few distinct file names, so every node sharing one file
// shares one interned entry. Entries are refcounted; the last handle to
// go removes the entry from the pool.
package strpool

import "github.com/derp-lang/derp/internal/invariant"

type entry struct {
	text    string
	refs    int
}

// Pool interns strings and hands out refcounted Handles.
type Pool struct {
	entries map[string]*entry
}

// New creates an empty string pool.
func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

// Handle is a refcounted reference to an interned string.
//
// The zero Handle is valid and dereferences to "".
type Handle struct {
	pool *Pool
	e    *entry
}

// GetOrAdd interns s, returning a Handle whose construction bumps the
// entry's refcount.
func (p *Pool) GetOrAdd(s string) Handle {
	e, ok := p.entries[s]
	if !ok {
		e = &entry{text: s}
		p.entries[s] = e
	}
	e.refs++
	return Handle{pool: p, e: e}
}

// String returns the handle's interned text ("" for the zero Handle).
func (h Handle) String() string {
	if h.e == nil {
		return ""
	}
	return h.e.text
}

// Retain returns a new Handle to the same entry, bumping its refcount.
// Use this instead of assigning Handle values directly so the pool's
// bookkeeping stays accurate (Go value copies don't run constructors).
func (h Handle) Retain() Handle {
	if h.e == nil {
		return h
	}
	h.e.refs++
	return h
}

// Release decrements the entry's refcount, removing it from the pool
// when the count reaches zero. Safe to call on the zero Handle.
func (h Handle) Release() {
	if h.e == nil {
		return
	}
	invariant.Invariant(h.e.refs > 0, "strpool entry %q released more times than retained", h.e.text)
	h.e.refs--
	if h.e.refs == 0 {
		delete(h.pool.entries, h.e.text)
	}
}

// Reassign releases the old handle and interns newText, returning the
// new Handle — the pool-level equivalent of Ref.reassign in §4.3.
func (p *Pool) Reassign(old Handle, newText string) Handle {
	next := p.GetOrAdd(newText)
	old.Release()
	return next
}

// Len reports the number of distinct interned strings (for tests).
func (p *Pool) Len() int {
	return len(p.entries)
}
