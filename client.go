// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/die-net/lrucache"
	"github.com/golang/glog"
	"github.com/gregjones/httpcache"
)

// An HTTPClient performs a single HTTP round trip for req, returning the
// response body and the response.  ctx governs the whole exchange,
// including reading the body.
type HTTPClient interface {
	Fetch(ctx context.Context, req *http.Request) ([]byte, *http.Response, error)
}

// ResponseCache caches raw HTTP responses, allowing conditional revalidation
// of images that have dropped out of the entry cache.
type ResponseCache = httpcache.Cache

const (
	// DefaultUserAgent is sent with requests that don't specify one.
	DefaultUserAgent = "willnorris/imagefetch"

	// DefaultMaxBytes is the response size limit of clients created
	// without one.
	DefaultMaxBytes = 10 << 20
)

// Client is the default HTTPClient.
type Client struct {
	Client *http.Client // client used to fetch remote URLs

	// UserAgent is sent with requests that don't already set a User-Agent.
	UserAgent string

	// MaxBytes is the largest response body accepted.  Zero means
	// DefaultMaxBytes.
	MaxBytes int64
}

// NewClient constructs a new client.  The provided http RoundTripper will be
// used to fetch remote URLs.  If nil is provided, http.DefaultTransport will
// be used.  If cache is not nil, responses are cached in it and revalidated
// according to their caching headers.
func NewClient(transport http.RoundTripper, cache ResponseCache) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := new(http.Client)
	client.Transport = transport
	if cache != nil {
		client.Transport = &httpcache.Transport{
			Transport:           transport,
			Cache:               cache,
			MarkCachedResponses: true,
		}
	}

	return &Client{
		Client:    client,
		UserAgent: DefaultUserAgent,
		MaxBytes:  DefaultMaxBytes,
	}
}

// NewResponseCache returns an in-memory ResponseCache holding up to sizeMB
// megabytes of responses, each kept for at most maxAge.  A zero maxAge
// keeps responses until they are evicted.
func NewResponseCache(sizeMB int64, maxAge time.Duration) *lrucache.LruCache {
	return lrucache.New(sizeMB*1e6, int64(maxAge.Seconds()))
}

// Fetch implements HTTPClient.  Bodies larger than MaxBytes are rejected
// with a ResponseError of KindTooLarge.
func (c *Client) Fetch(ctx context.Context, req *http.Request) ([]byte, *http.Response, error) {
	req = req.Clone(ctx)
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.Header.Get(httpcache.XFromCache) == "1" {
		responseCacheHits.Inc()
		glog.V(1).Infof("response for %v served from response cache", req.URL)
	}

	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if resp.ContentLength > limit {
		return nil, resp, &ResponseError{
			Kind: KindTooLarge,
			URL:  req.URL,
			Err:  fmt.Errorf("content length %d exceeds maximum %d bytes", resp.ContentLength, limit),
		}
	}

	// read one byte past the limit to detect bodies without a
	// Content-Length that are too large
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, resp, err
	}
	if int64(len(b)) > limit {
		return nil, resp, &ResponseError{
			Kind: KindTooLarge,
			URL:  req.URL,
			Err:  fmt.Errorf("response body exceeds maximum %d bytes", limit),
		}
	}

	return b, resp, nil
}
