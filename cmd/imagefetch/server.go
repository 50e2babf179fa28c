// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"willnorris.com/go/imagefetch"
)

// server serves descriptions of remote images.
type server struct {
	service   *imagefetch.Service
	processor imagefetch.Processor
}

// imageInfo is the JSON description of a fetched image.
type imageInfo struct {
	URL    string  `json:"url"`
	Format string  `json:"format"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/avatar/{hash}", s.serveAvatar).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.serveImage).Methods(http.MethodGet)
	return r
}

// serveAvatar handles /avatar/{hash}.  hash may also be an email address.
// Query parameters s, r, d, and f select avatar options, and force=true
// ignores any cached image.
func (s *server) serveAvatar(w http.ResponseWriter, r *http.Request) {
	hash, err := url.PathUnescape(mux.Vars(r)["hash"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid avatar hash: %v", err), http.StatusBadRequest)
		return
	}
	if strings.Contains(hash, "@") {
		hash = imagefetch.EmailHash(hash)
	}

	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))
	opt := imagefetch.DownloadOptions{
		Options:      imagefetch.OptionsFromQuery(q),
		ForceRefresh: force,
		Processor:    s.processor,
	}

	res, err := s.service.FetchAvatar(r.Context(), hash, opt)
	s.respond(w, r, res, err)
}

// serveImage handles /{options}/{remote URL} and /{remote URL}.  The only
// option currently recognized is "force", which ignores any cached image.
// The query string is always part of the remote URL.
func (s *server) serveImage(w http.ResponseWriter, r *http.Request) {
	u, opts, err := parseImagePath(r.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var force bool
	for _, opt := range strings.Split(opts, ",") {
		if opt == "force" {
			force = true
		}
	}

	res, err := s.service.FetchImage(r.Context(), u, force, s.processor)
	s.respond(w, r, res, err)
}

// parseImagePath extracts the remote URL and option string from the path
// of a request URL.
func parseImagePath(r *url.URL) (u *url.URL, opts string, err error) {
	path := strings.TrimPrefix(r.Path, "/")
	u, err = url.Parse(path)
	if err != nil || !u.IsAbs() {
		// first segment is likely options
		var rest string
		var ok bool
		opts, rest, ok = strings.Cut(path, "/")
		if !ok {
			return nil, "", fmt.Errorf("too few path segments in %q", r.Path)
		}
		u, err = url.Parse(rest)
		if err != nil {
			return nil, "", fmt.Errorf("unable to parse remote URL: %w", err)
		}
	}

	// SkipClean leaves "http://" intact, but some clients collapse it
	if u.Scheme != "" && u.Host == "" && strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//") {
		u, err = url.Parse(u.Scheme + "://" + strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, "", fmt.Errorf("unable to parse remote URL: %w", err)
		}
	}

	u.RawQuery = r.RawQuery
	return u, opts, nil
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, res *imagefetch.Result, err error) {
	if err != nil {
		code := statusCode(err)
		if code >= 500 {
			glog.Errorf("error serving %v: %v", r.URL, err)
		}
		http.Error(w, err.Error(), code)
		return
	}

	b := res.Image.Bounds()
	info := imageInfo{
		URL:    res.URL.String(),
		Format: res.Image.Format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Scale:  res.Image.Scale,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		glog.Errorf("error writing response: %v", err)
	}
}

// statusCode returns the HTTP status to report err with.
func statusCode(err error) int {
	var reqErr *imagefetch.RequestError
	var respErr *imagefetch.ResponseError
	var procErr *imagefetch.ProcessingError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &respErr):
		if respErr.Kind == imagefetch.KindStatus && respErr.StatusCode >= 400 && respErr.StatusCode < 500 {
			return respErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &procErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
