// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package imagefetch fetches, decodes, and caches remote images such as
// Gravatar avatars.
//
// Concurrent requests for the same image share a single remote fetch: the
// first request publishes an in-progress entry in the Cache before it
// touches the network, and later requests wait on that entry instead of
// fetching again.  For typical use, see cmd/imagefetch/main.go.
package imagefetch // import "willnorris.com/go/imagefetch"

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
)

// Result is a fetched and processed image.
type Result struct {
	Image *Image
	URL   *url.URL // URL the image was fetched from
}

// CacheKey returns the key an image URL is cached under: the full URL,
// including every query parameter.
func CacheKey(u *url.URL) string {
	return u.String()
}

// keyLocks serialize the check-then-publish sequence for each cache key.
// They are shared by all services so that services sharing a Cache also
// share fetches.
var keyLocks [64]sync.Mutex

func keyLock(key string) *sync.Mutex {
	return &keyLocks[xxhash.Sum64String(key)%uint64(len(keyLocks))]
}

// Service fetches and caches images.  The zero value is ready to use, and
// fetches with a default Client into DefaultCache.
type Service struct {
	Client HTTPClient // client used to fetch remote URLs
	Cache  Cache      // cache used to cache images and in-flight fetches
}

// NewService constructs a new service.  If client is nil, a Client using
// http.DefaultTransport is used.  If cache is nil, DefaultCache is used.
func NewService(client HTTPClient, cache Cache) *Service {
	if client == nil {
		client = NewClient(nil, nil)
	}
	if cache == nil {
		cache = DefaultCache
	}
	return &Service{Client: client, Cache: cache}
}

var defaultClient = NewClient(nil, nil)

func (s *Service) client() HTTPClient {
	if s.Client == nil {
		return defaultClient
	}
	return s.Client
}

func (s *Service) cache() Cache {
	if s.Cache == nil {
		return DefaultCache
	}
	return s.Cache
}

// FetchImage returns the image at u, processed by p (DefaultProcessor if
// nil).
//
// A cached image is returned without any remote request unless forceRefresh
// is true.  If the image is already being fetched, FetchImage waits for that
// fetch rather than starting another.  Otherwise it fetches the image,
// caching it on success.  A failed fetch leaves nothing in the cache.
//
// The processor is only used by the call that starts a fetch; callers that
// join an existing fetch or hit the cache get the image as it was processed
// then.  Callers using different processors should use different URLs or
// caches.
//
// If ctx is done before the image is ready, FetchImage returns ctx.Err().
// The fetch continues for other callers waiting on it, and is cancelled
// once no callers remain.
func (s *Service) FetchImage(ctx context.Context, u *url.URL, forceRefresh bool, p Processor) (*Result, error) {
	if err := validateURL(u); err != nil {
		return nil, err
	}

	key := CacheKey(u)
	cache := s.cache()

	mu := keyLock(key)
	mu.Lock()
	if !forceRefresh {
		if e := cache.GetEntry(key); e != nil {
			switch e.Kind() {
			case EntryReady:
				mu.Unlock()
				cacheHitCount.Inc()
				glog.V(1).Infof("serving from cache: %v", key)
				return e.Result(), nil
			case EntryInProgress:
				t := e.Task()
				t.refs++
				mu.Unlock()
				cacheJoinCount.Inc()
				glog.V(1).Infof("joining fetch in progress: %v", key)
				return s.wait(ctx, t)
			}
		}
	}

	// publish the task before fetching, so that callers arriving during
	// the fetch join it
	t := newTask(ctx, key)
	t.refs++
	cache.SetEntry(InProgress(t), key)
	mu.Unlock()
	cacheMissCount.Inc()

	go s.run(t, u, forceRefresh, p)
	return s.wait(ctx, t)
}

// Download fetches the image at u after applying opt.Options to its query.
func (s *Service) Download(ctx context.Context, u *url.URL, opt DownloadOptions) (*Result, error) {
	if err := validateURL(u); err != nil {
		return nil, err
	}
	return s.FetchImage(ctx, opt.Apply(u), opt.ForceRefresh, opt.Processor)
}

// FetchAvatar fetches the avatar identified by hash (see EmailHash).
func (s *Service) FetchAvatar(ctx context.Context, hash string, opt DownloadOptions) (*Result, error) {
	if hash == "" {
		return nil, &RequestError{Message: "empty avatar hash", Err: ErrEmptyURL}
	}
	return s.FetchImage(ctx, AvatarURL(hash, opt.Options), opt.ForceRefresh, opt.Processor)
}

// wait waits on t for a caller that holds a reference to it, then drops the
// reference.  When the last caller gives up on an unfinished task, the task
// is removed from the cache and cancelled.
func (s *Service) wait(ctx context.Context, t *Task) (*Result, error) {
	r, err := t.Wait(ctx)

	mu := keyLock(t.key)
	mu.Lock()
	t.refs--
	abandoned := t.refs == 0 && !t.completed()
	if abandoned {
		cache := s.cache()
		if e := cache.GetEntry(t.key); e != nil && e.Task() == t {
			cache.SetEntry(nil, t.key)
		}
	}
	mu.Unlock()

	if abandoned {
		glog.V(1).Infof("cancelling abandoned fetch: %v", t.key)
		t.cancel()
	}
	return r, err
}

// run performs the fetch for t and records its outcome, first in the cache
// and then on t, so that callers woken by t see the updated cache.
func (s *Service) run(t *Task, u *url.URL, forceRefresh bool, p Processor) {
	r, err := s.fetch(t.ctx, u, forceRefresh, p)

	mu := keyLock(t.key)
	mu.Lock()
	cache := s.cache()
	e := cache.GetEntry(t.key)
	current := e != nil && e.Task() == t
	switch {
	case err == nil && (current || e == nil):
		cache.SetEntry(Ready(r), t.key)
	case err != nil && current:
		cache.SetEntry(nil, t.key)
	}
	mu.Unlock()

	t.complete(r, err)
}

// fetch retrieves and processes the image at u.
func (s *Service) fetch(ctx context.Context, u *url.URL, forceRefresh bool, p Processor) (*Result, error) {
	glog.Infof("fetching remote image: %v", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &RequestError{Message: err.Error(), URL: u, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	if forceRefresh {
		// bypass any response cache below us as well
		req.Header.Set("Cache-Control", "no-cache")
	}

	start := time.Now()
	remoteFetchCount.Inc()
	b, resp, err := s.client().Fetch(ctx, req)
	fetchSummary.Observe(time.Since(start).Seconds())
	if err == nil {
		err = checkResponse(u, resp, b)
	}
	if err != nil {
		var re *ResponseError
		if !errors.As(err, &re) {
			re = &ResponseError{Kind: KindSession, URL: u, Err: err}
		}
		remoteFetchErrors.WithLabelValues(re.Kind.String()).Inc()
		glog.Errorf("error fetching remote image: %v", re)
		return nil, re
	}

	start = time.Now()
	m := process(p, b)
	processingSummary.Observe(time.Since(start).Seconds())
	if m == nil {
		remoteFetchErrors.WithLabelValues("processing").Inc()
		err := &ProcessingError{URL: u, Size: len(b)}
		glog.Errorf("error processing remote image: %v", err)
		return nil, err
	}

	return &Result{Image: m, URL: u}, nil
}

// checkResponse returns an error if resp to a request for u is not a
// successful response carrying a body.
func checkResponse(u *url.URL, resp *http.Response, body []byte) error {
	if resp == nil {
		return &ResponseError{Kind: KindNotHTTP, URL: u}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ResponseError{Kind: KindStatus, StatusCode: resp.StatusCode, URL: u}
	}
	if r := originalRequest(resp); r != nil && r.URL != nil && r.URL.String() != u.String() {
		return &ResponseError{
			Kind: KindURLMismatch,
			URL:  u,
			Err:  fmt.Errorf("response is for %q", r.URL),
		}
	}
	if len(body) == 0 {
		return &ResponseError{Kind: KindEmptyBody, URL: u}
	}
	return nil
}

// originalRequest returns the first request in the redirect chain that led
// to resp, or nil if resp does not record its request.
func originalRequest(resp *http.Response) *http.Request {
	r := resp.Request
	for r != nil && r.Response != nil && r.Response.Request != nil {
		r = r.Response.Request
	}
	return r
}

// validateURL returns a RequestError if u can't be fetched.
func validateURL(u *url.URL) error {
	if u == nil || u.String() == "" {
		return &RequestError{Message: "empty URL", URL: u, Err: ErrEmptyURL}
	}
	if !u.IsAbs() {
		return &RequestError{Message: "must provide absolute remote URL", URL: u}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &RequestError{Message: "remote URL must have http or https scheme", URL: u}
	}
	if u.Host == "" {
		return &RequestError{Message: "remote URL must have a host", URL: u}
	}
	return nil
}
