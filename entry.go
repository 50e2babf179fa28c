// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import "context"

// EntryKind identifies the variant held by a CacheEntry.
type EntryKind int

const (
	// EntryInProgress entries hold the Task fetching the image.
	EntryInProgress EntryKind = iota + 1
	// EntryReady entries hold a fetched and processed image.
	EntryReady
)

func (k EntryKind) String() string {
	switch k {
	case EntryInProgress:
		return "in progress"
	case EntryReady:
		return "ready"
	}
	return "invalid"
}

// A CacheEntry is the cached state of a single image: either a fetch in
// progress, or the fetched result.  Entries are immutable; caches replace
// them wholesale.
type CacheEntry struct {
	kind   EntryKind
	task   *Task
	result *Result
}

// InProgress returns an entry for the in-flight fetch t.
func InProgress(t *Task) *CacheEntry {
	return &CacheEntry{kind: EntryInProgress, task: t}
}

// Ready returns an entry for the fetched result r.
func Ready(r *Result) *CacheEntry {
	return &CacheEntry{kind: EntryReady, result: r}
}

// Kind returns which variant e holds.
func (e *CacheEntry) Kind() EntryKind { return e.kind }

// Task returns the in-flight fetch, or nil if e is not in progress.
func (e *CacheEntry) Task() *Task { return e.task }

// Result returns the fetched image, or nil if e is not ready.
func (e *CacheEntry) Result() *Result { return e.result }

// A Task is a single in-flight image fetch, shared by every caller that
// requested the same image while it was running.  Any number of callers may
// wait on a Task; all of them observe the same result or error.
type Task struct {
	key  string
	done chan struct{}

	// set before done is closed
	result *Result
	err    error

	ctx    context.Context
	cancel context.CancelFunc

	// number of callers waiting on the task.  Guarded by the key's lock.
	refs int
}

func newTask(parent context.Context, key string) *Task {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Task{
		key:    key,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Key returns the cache key of the image being fetched.
func (t *Task) Key() string { return t.key }

// Done returns a channel that is closed when the task completes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes and returns its outcome, or until ctx
// is done and returns ctx.Err().  Giving up on a task does not stop it.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	default:
	}

	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) complete(r *Result, err error) {
	t.result, t.err = r, err
	close(t.done)
	t.cancel()
}

func (t *Task) completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
