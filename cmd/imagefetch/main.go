// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// imagefetch starts an HTTP server that fetches remote images and avatars
// and describes them as JSON.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	aia "github.com/fcjr/aia-transport-go"
	"github.com/golang/glog"
	"github.com/jamiealquiza/envy"
	"willnorris.com/go/imagefetch"
	"willnorris.com/go/imagefetch/internal/ottercache"
)

var addr = flag.String("addr", "localhost:8080", "TCP address to listen on")
var cacheFlag = flag.String("cache", "memory", "image cache: memory, memory:<entries>, memory:<entries>:<ttl>, or none")
var responseCache = flag.String("responseCache", "", "HTTP response cache as <MB>[:<maxAge>]; empty disables")
var timeout = flag.Duration("timeout", 0, "time limit for remote fetches and served requests")
var maxSize = flag.Int64("maxSize", 10, "maximum remote image size in megabytes")
var userAgent = flag.String("userAgent", imagefetch.DefaultUserAgent, "user-agent used when fetching remote images")
var scale = flag.Float64("scale", 1, "pixels per point recorded on decoded images")
var square = flag.Bool("square", false, "crop images to a square")
var smart = flag.Bool("smart", false, "choose square crops by content analysis")
var fetchIntermediates = flag.Bool("fetchIntermediates", false, "fetch missing intermediate TLS certificates from remote servers")

func main() {
	envy.Parse("IMAGEFETCH")
	flag.Parse()

	cache, err := parseCache(*cacheFlag)
	if err != nil {
		glog.Exitf("error parsing cache flag: %v", err)
	}
	rc, err := parseResponseCache(*responseCache)
	if err != nil {
		glog.Exitf("error parsing responseCache flag: %v", err)
	}

	var transport http.RoundTripper
	if *fetchIntermediates {
		transport, err = aia.NewTransport()
		if err != nil {
			glog.Exitf("error creating transport: %v", err)
		}
	}

	client := imagefetch.NewClient(transport, rc)
	client.UserAgent = *userAgent
	client.MaxBytes = *maxSize << 20
	client.Client.Timeout = *timeout

	s := &server{
		service:   imagefetch.NewService(client, cache),
		processor: newProcessor(*scale, *square, *smart),
	}

	var h http.Handler = s.router()
	if *timeout > 0 {
		h = http.TimeoutHandler(h, *timeout, "Gateway timeout waiting for remote resource.")
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: h,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("imagefetch listening on %s\n", srv.Addr)
	glog.Fatal(srv.ListenAndServe())
}

// newProcessor returns the processor for images served by the server.
func newProcessor(scale float64, square, smart bool) imagefetch.Processor {
	var p imagefetch.Processor = imagefetch.DecodeProcessor{Scale: scale}
	if square {
		p = imagefetch.SquareProcessor{Processor: p, Smart: smart}
	}
	return p
}

// parseCache parses c and returns the specified Cache implementation.
//
//	memory                   LRU cache of imagefetch.DefaultMemorySize entries
//	memory:<entries>         LRU cache of the given number of entries
//	memory:<entries>:<ttl>   cache of the given size whose entries expire
//	none                     no caching; only concurrent fetches are shared
func parseCache(c string) (imagefetch.Cache, error) {
	if c == "" || c == "memory" {
		return imagefetch.NewMemoryCache(imagefetch.DefaultMemorySize), nil
	}
	if c == "none" {
		return imagefetch.NopCache, nil
	}

	opts, ok := strings.CutPrefix(c, "memory:")
	if !ok {
		return nil, fmt.Errorf("unknown cache %q", c)
	}
	parts := strings.SplitN(opts, ":", 2)
	size, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive: %d", size)
	}
	if len(parts) == 1 {
		return imagefetch.NewMemoryCache(size), nil
	}

	ttl, err := time.ParseDuration(parts[1])
	if err != nil {
		return nil, err
	}
	return ottercache.New(size, ttl), nil
}

// parseResponseCache creates an HTTP response cache with the specified
// options of the form "maxSize:maxAge".  maxSize is specified in megabytes,
// maxAge is a duration.  An empty string returns a nil cache.
func parseResponseCache(options string) (imagefetch.ResponseCache, error) {
	if options == "" {
		return nil, nil
	}
	parts := strings.SplitN(options, ":", 2)
	size, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}

	var age time.Duration
	if len(parts) > 1 {
		age, err = time.ParseDuration(parts[1])
		if err != nil {
			return nil, err
		}
	}

	return imagefetch.NewResponseCache(size, age), nil
}
