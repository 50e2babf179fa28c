// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

var (
	// ErrEmptyURL is wrapped by the RequestError returned for a nil or empty
	// image URL.
	ErrEmptyURL = errors.New("empty image URL")

	// ErrStaleTask is passed to a Target's completion func when the result
	// belongs to a request that has since been superseded.
	ErrStaleTask = errors.New("image request superseded by a newer request")
)

// RequestError reports a request that was rejected before any I/O.
type RequestError struct {
	Message string
	URL     *url.URL
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid image URL %q: %s", e.URL, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseErrorKind identifies why a remote response was unusable.
type ResponseErrorKind int

const (
	// KindSession is a transport-level failure; Err holds the cause.
	KindSession ResponseErrorKind = iota
	// KindNotHTTP means the client returned no HTTP response at all.
	KindNotHTTP
	// KindStatus is a non-2xx status; StatusCode holds it.
	KindStatus
	// KindEmptyBody is a successful status with no body.
	KindEmptyBody
	// KindURLMismatch means the response answers a different URL than the
	// one requested.
	KindURLMismatch
	// KindTooLarge is a body exceeding the client's size limit.
	KindTooLarge
)

var kindNames = map[ResponseErrorKind]string{
	KindSession:     "session",
	KindNotHTTP:     "not_http",
	KindStatus:      "status",
	KindEmptyBody:   "empty_body",
	KindURLMismatch: "url_mismatch",
	KindTooLarge:    "too_large",
}

func (k ResponseErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ResponseError reports a failed or unusable response from the remote
// server.
type ResponseError struct {
	Kind       ResponseErrorKind
	StatusCode int // set for KindStatus
	URL        *url.URL
	Err        error
}

func (e *ResponseError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("remote URL %q returned status: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case KindSession:
		return fmt.Sprintf("error fetching remote image %q: %v", e.URL, e.Err)
	case KindTooLarge:
		return fmt.Sprintf("remote image %q exceeds size limit: %v", e.URL, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("unusable response for %q (%v): %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("unusable response for %q (%v)", e.URL, e.Kind)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// ProcessingError reports image bytes that the processor could not turn
// into an image.
type ProcessingError struct {
	URL  *url.URL
	Size int // number of bytes handed to the processor
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("unable to process %d byte image from %q", e.Size, e.URL)
}

// IsNotFound reports whether err is a 404 response, which is how Gravatar
// answers for unknown hashes when the default image is "404".
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Kind == KindStatus && re.StatusCode == http.StatusNotFound
}
