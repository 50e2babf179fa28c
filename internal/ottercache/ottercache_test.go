// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package ottercache

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"willnorris.com/go/imagefetch"
)

func readyEntry(s string) *imagefetch.CacheEntry {
	u, _ := url.Parse(s)
	return imagefetch.Ready(&imagefetch.Result{URL: u})
}

func TestCache(t *testing.T) {
	cache := New(10, time.Minute)

	t.Run("set and get", func(t *testing.T) {
		key := "http://example.com/a"
		want := readyEntry(key)
		cache.SetEntry(want, key)
		if got := cache.GetEntry(key); got != want {
			t.Errorf("GetEntry(%q) returned %v, want %v", key, got, want)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if got := cache.GetEntry("http://example.com/missing"); got != nil {
			t.Errorf("GetEntry returned %v, want nil", got)
		}
	})

	t.Run("nil entry removes key", func(t *testing.T) {
		key := "http://example.com/b"
		cache.SetEntry(readyEntry(key), key)
		cache.SetEntry(nil, key)
		if got := cache.GetEntry(key); got != nil {
			t.Errorf("GetEntry after removal returned %v, want nil", got)
		}
	})

	t.Run("stats", func(t *testing.T) {
		if s := cache.Stats(); s.Hits == 0 || s.Misses == 0 {
			t.Errorf("Stats() = %+v, want non-zero hits and misses", s)
		}
	})
}

func TestCache_Expiration(t *testing.T) {
	cache := New(10, 50*time.Millisecond)

	key := "http://example.com/expiring"
	cache.SetEntry(readyEntry(key), key)
	if cache.GetEntry(key) == nil {
		t.Fatal("expected entry to exist in cache")
	}

	time.Sleep(500 * time.Millisecond)

	if got := cache.GetEntry(key); got != nil {
		t.Errorf("expected entry to be expired, got %v", got)
	}
}

func TestCache_InProgressPinned(t *testing.T) {
	cache := New(2, 50*time.Millisecond)

	key := "http://example.com/slow"
	want := imagefetch.InProgress(new(imagefetch.Task))
	cache.SetEntry(want, key)
	for i := range 10 {
		k := fmt.Sprintf("http://example.com/%d", i)
		cache.SetEntry(readyEntry(k), k)
	}
	time.Sleep(200 * time.Millisecond)

	if got := cache.GetEntry(key); got != want {
		t.Fatalf("GetEntry(%q) returned %v, want in progress entry", key, got)
	}

	ready := readyEntry(key)
	cache.SetEntry(ready, key)
	if got := cache.GetEntry(key); got != ready {
		t.Errorf("GetEntry(%q) returned %v, want ready entry", key, got)
	}

	cache.SetEntry(nil, key)
	if got := cache.GetEntry(key); got != nil {
		t.Errorf("GetEntry after removal returned %v, want nil", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	cache := New(0, 0)
	key := "http://example.com/a"
	cache.SetEntry(readyEntry(key), key)
	if cache.GetEntry(key) == nil {
		t.Error("expected entry to exist in cache with default options")
	}
}
