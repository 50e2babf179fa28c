// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"context"
	"net/url"
	"sync"
)

// Target loads images on behalf of a single consumer, such as a view that
// displays one avatar at a time.  Only the most recent Load is current:
// loading a new image abandons the previous one, and a fetch that finishes
// after it was superseded reports ErrStaleTask.
type Target struct {
	Service *Service // service used to fetch images; nil uses a zero Service

	mu     sync.Mutex
	seq    uint64
	handle *Handle
}

// Handle identifies a single Load on a Target.
type Handle struct {
	seq    uint64
	cancel context.CancelFunc
}

// Seq returns the sequence number of the load.  Sequence numbers increase
// with every Load on the same Target.
func (h *Handle) Seq() uint64 { return h.seq }

// Cancel abandons the load.  The underlying fetch continues if other
// callers are waiting on it.
func (h *Handle) Cancel() { h.cancel() }

// Load fetches u with opt in the background and calls done with the
// outcome.  Any earlier load on t is cancelled.  done is called exactly
// once, from a separate goroutine.  If the load is no longer current when
// the fetch finishes, done receives ErrStaleTask.
func (t *Target) Load(ctx context.Context, u *url.URL, opt DownloadOptions, done func(*Result, error)) *Handle {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.handle != nil {
		t.handle.cancel()
	}
	t.seq++
	h := &Handle{seq: t.seq, cancel: cancel}
	t.handle = h
	t.mu.Unlock()

	s := t.Service
	if s == nil {
		s = new(Service)
	}

	go func() {
		defer cancel()
		r, err := s.Download(ctx, u, opt)
		if !t.current(h) {
			r, err = nil, ErrStaleTask
		}
		if done != nil {
			done(r, err)
		}
	}()
	return h
}

// Cancel abandons the current load, if any.
func (t *Target) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle != nil {
		t.handle.cancel()
		t.handle = nil
	}
}

func (t *Target) current(h *Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle == h
}
