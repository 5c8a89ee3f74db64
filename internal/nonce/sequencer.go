// Package nonce hands out strictly increasing nonces for one account within a
// single provisioning call.
package nonce

import (
	"context"
	"sync"

	xerrors "IntentWallet/internal/errors"
)

// Source reads the current nonce from the chain.
type Source interface {
	Nonce(ctx context.Context) (uint64, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context) (uint64, error)

// Nonce implements Source.
func (f SourceFunc) Nonce(ctx context.Context) (uint64, error) {
	return f(ctx)
}

// Sequencer is created per call and discarded afterwards. It queries Source at
// most once and then counts locally, so a stale remote value cannot cause
// reuse within the same call.
type Sequencer struct {
	source Source

	mu      sync.Mutex
	next    uint64
	known   bool
	queries int
}

// NewSequencer returns a sequencer that learns its start from source.
func NewSequencer(source Source) *Sequencer {
	return &Sequencer{source: source}
}

// Seeded returns a sequencer starting at start without ever querying the
// chain. Freshly deployed Safes start at 0.
func Seeded(start uint64) *Sequencer {
	return &Sequencer{next: start, known: true}
}

// Override returns a sequencer for an explicit caller supplied nonce, or one
// backed by source when explicit is nil.
func Override(explicit *uint64, source Source) *Sequencer {
	if explicit != nil {
		return Seeded(*explicit)
	}
	return NewSequencer(source)
}

// Next returns the nonce for the next transaction and reserves it.
func (s *Sequencer) Next(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}
	n := s.next
	s.next++
	return n, nil
}

// Peek returns the nonce the next transaction would use without reserving it.
func (s *Sequencer) Peek(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}
	return s.next, nil
}

// Queries is the number of times the chain was consulted.
func (s *Sequencer) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *Sequencer) ensure(ctx context.Context) error {
	if s.known {
		return nil
	}
	if s.source == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "nonce 序列器缺少数据源")
	}
	s.queries++
	n, err := s.source.Nonce(ctx)
	if err != nil {
		return err
	}
	s.next = n
	s.known = true
	return nil
}
