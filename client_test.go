// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gregjones/httpcache"
)

// testTransport is an http.RoundTripper that returns certain canned
// responses for particular requests, and records the requests it handles.
type testTransport struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	var raw string

	switch req.URL.Path {
	case "/plain":
		raw = "HTTP/1.1 200 OK\n\nplain"
	case "/error":
		return nil, errors.New("http protocol error")
	case "/nocontent":
		raw = "HTTP/1.1 204 No Content\nContent-Type: image/png\n\n"
	case "/cached":
		date := time.Now().UTC().Format(http.TimeFormat)
		raw = "HTTP/1.1 200 OK\nCache-Control: max-age=3600\nDate: " + date + "\nContent-Length: 6\n\ncached"
	case "/large":
		raw = "HTTP/1.1 200 OK\nContent-Length: 100\n\n" + strings.Repeat("x", 100)
	case "/large-chunked":
		raw = "HTTP/1.1 200 OK\nTransfer-Encoding: chunked\n\n64\r\n" + strings.Repeat("x", 100) + "\r\n0\r\n\r\n"
	case "/png":
		raw = fmt.Sprintf("HTTP/1.1 200 OK\nContent-Length: %d\nContent-Type: image/png\n\n%s", len(testPNG), testPNG)
	default:
		raw = "HTTP/1.1 404 Not Found\n\n"
	}

	buf := bufio.NewReader(bytes.NewBufferString(raw))
	return http.ReadResponse(buf, req)
}

func (t *testTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// testPNG is a 3x2 png image.
var testPNG = func() []byte {
	buf := new(bytes.Buffer)
	png.Encode(buf, image.NewNRGBA(image.Rect(0, 0, 3, 2)))
	return buf.Bytes()
}()

func fetch(t *testing.T, c HTTPClient, url string, header ...string) ([]byte, *http.Response, error) {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatalf("NewRequest(%q) returned error: %v", url, err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return c.Fetch(context.Background(), req)
}

func TestClient_Fetch(t *testing.T) {
	tr := new(testTransport)
	c := NewClient(tr, nil)

	tests := []struct {
		url     string
		body    string
		code    int
		wantErr bool
	}{
		{"http://good.test/plain", "plain", http.StatusOK, false},
		{"http://good.test/nocontent", "", http.StatusNoContent, false},
		{"http://good.test/missing", "", http.StatusNotFound, false},
		{"http://good.test/png", string(testPNG), http.StatusOK, false},
		{"http://good.test/error", "", 0, true},
	}

	for _, tt := range tests {
		b, resp, err := fetch(t, c, tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Fetch(%q) did not return expected error", tt.url)
			}
			if resp != nil {
				t.Errorf("Fetch(%q) returned response with error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("Fetch(%q) returned unexpected error: %v", tt.url, err)
			continue
		}
		if got, want := resp.StatusCode, tt.code; got != want {
			t.Errorf("Fetch(%q) returned status %d, want %d", tt.url, got, want)
		}
		if got, want := string(b), tt.body; got != want {
			t.Errorf("Fetch(%q) returned body %q, want %q", tt.url, got, want)
		}
	}
}

func TestClient_Fetch_UserAgent(t *testing.T) {
	tr := new(testTransport)
	c := NewClient(tr, nil)

	fetch(t, c, "http://good.test/plain")
	fetch(t, c, "http://good.test/plain", "User-Agent", "custom")

	if got, want := tr.requests[0].Header.Get("User-Agent"), DefaultUserAgent; got != want {
		t.Errorf("request sent with User-Agent %q, want %q", got, want)
	}
	if got, want := tr.requests[1].Header.Get("User-Agent"), "custom"; got != want {
		t.Errorf("request sent with User-Agent %q, want %q", got, want)
	}
}

func TestClient_Fetch_TooLarge(t *testing.T) {
	c := NewClient(new(testTransport), nil)
	c.MaxBytes = 50

	for _, url := range []string{"http://good.test/large", "http://good.test/large-chunked"} {
		_, resp, err := fetch(t, c, url)
		var re *ResponseError
		if !errors.As(err, &re) || re.Kind != KindTooLarge {
			t.Errorf("Fetch(%q) returned error %v, want KindTooLarge", url, err)
		}
		if resp == nil {
			t.Errorf("Fetch(%q) did not return response with error", url)
		}
	}

	c.MaxBytes = 100
	b, _, err := fetch(t, c, "http://good.test/large-chunked")
	if err != nil {
		t.Errorf("Fetch returned unexpected error: %v", err)
	}
	if got, want := len(b), 100; got != want {
		t.Errorf("Fetch returned %d bytes, want %d", got, want)
	}
}

func TestClient_Fetch_Context(t *testing.T) {
	c := NewClient(new(testTransport), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequest("GET", "http://good.test/plain", nil)
	if _, _, err := c.Fetch(ctx, req); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch with cancelled context returned error %v, want %v", err, context.Canceled)
	}
}

func TestClient_ResponseCache(t *testing.T) {
	tr := new(testTransport)
	c := NewClient(tr, NewResponseCache(1, 0))

	url := "http://good.test/cached"
	for i := 0; i < 2; i++ {
		b, _, err := fetch(t, c, url)
		if err != nil {
			t.Fatalf("Fetch(%q) returned error: %v", url, err)
		}
		if got, want := string(b), "cached"; got != want {
			t.Errorf("Fetch(%q) returned body %q, want %q", url, got, want)
		}
	}
	if got, want := tr.count(), 1; got != want {
		t.Errorf("transport received %d requests, want %d", got, want)
	}

	// second response was served from the cache
	_, resp, _ := fetch(t, c, url)
	if got, want := resp.Header.Get(httpcache.XFromCache), "1"; got != want {
		t.Errorf("response %s header is %q, want %q", httpcache.XFromCache, got, want)
	}

	// no-cache requests go back to the remote server
	fetch(t, c, url, "Cache-Control", "no-cache")
	if got, want := tr.count(), 2; got != want {
		t.Errorf("transport received %d requests, want %d", got, want)
	}
}
