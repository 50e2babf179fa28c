// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultBaseURL is the URL avatar hashes are resolved against.
const DefaultBaseURL = "https://gravatar.com/avatar/"

// MaxSize is the largest avatar size, in pixels, the remote server renders.
const MaxSize = 2048

// Rating is the most explicit content rating an avatar may have.
type Rating string

// Known ratings, from least to most explicit.
const (
	RatingG  Rating = "g"
	RatingPG Rating = "pg"
	RatingR  Rating = "r"
	RatingX  Rating = "x"
)

func (r Rating) valid() bool {
	switch r {
	case RatingG, RatingPG, RatingR, RatingX:
		return true
	}
	return false
}

// DefaultImage selects what is served when no avatar exists for a hash.  It
// is either one of the named styles below or an absolute image URL.
type DefaultImage string

const (
	DefaultNotFound      DefaultImage = "404" // respond with 404 instead of an image
	DefaultMysteryPerson DefaultImage = "mp"
	DefaultIdenticon     DefaultImage = "identicon"
	DefaultMonsterID     DefaultImage = "monsterid"
	DefaultWavatar       DefaultImage = "wavatar"
	DefaultRetro         DefaultImage = "retro"
	DefaultRobohash      DefaultImage = "robohash"
	DefaultBlank         DefaultImage = "blank"
)

// Options specifies how the remote server should render a requested avatar.
// Every field is encoded in the request URL, and so is part of the cache key.
type Options struct {
	// Size is the requested width and height in pixels.  Zero leaves the
	// size to the server; values above MaxSize are clamped.
	Size int

	Rating Rating

	Default DefaultImage

	// If true, the default image is served even if an avatar exists.
	ForceDefault bool
}

// String returns the canonical comma separated form of o, which ParseOptions
// accepts.  Empty options return an empty string.
func (o Options) String() string {
	var opts []string
	if o.Size > 0 {
		opts = append(opts, "s="+strconv.Itoa(o.size()))
	}
	if o.Rating != "" {
		opts = append(opts, "r="+string(o.Rating))
	}
	if o.Default != "" {
		opts = append(opts, "d="+url.QueryEscape(string(o.Default)))
	}
	if o.ForceDefault {
		opts = append(opts, "f")
	}
	sort.Strings(opts)
	return strings.Join(opts, ",")
}

func (o Options) size() int {
	if o.Size > MaxSize {
		return MaxSize
	}
	return o.Size
}

// ParseOptions parses str as a comma separated list of options.  Unknown or
// malformed options are ignored; when an option is repeated the last one
// wins.
//
//	80         size
//	s=80       size
//	r=pg       rating (g, pg, r, x)
//	d=retro    default image, or an escaped absolute URL
//	f          force the default image
func ParseOptions(str string) Options {
	var o Options
	for _, opt := range strings.Split(str, ",") {
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "f":
			o.ForceDefault = true
		case "s":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				o.Size = n
			}
		case "r":
			if r := Rating(strings.ToLower(value)); r.valid() {
				o.Rating = r
			}
		case "d":
			if d, err := url.QueryUnescape(value); err == nil && d != "" {
				o.Default = DefaultImage(d)
			}
		default:
			if n, err := strconv.Atoi(key); err == nil && n > 0 {
				o.Size = n
			}
		}
	}
	return o
}

// OptionsFromQuery reads options from URL query values using the remote
// server's parameter names.  It is the inverse of Options.Apply.
func OptionsFromQuery(q url.Values) Options {
	var o Options
	if n, err := strconv.Atoi(q.Get("s")); err == nil && n > 0 {
		o.Size = n
	}
	if r := Rating(strings.ToLower(q.Get("r"))); r.valid() {
		o.Rating = r
	}
	o.Default = DefaultImage(q.Get("d"))
	switch q.Get("f") {
	case "y", "true", "1":
		o.ForceDefault = true
	}
	return o
}

// Apply returns a copy of u with its query updated to request o.  Other
// query parameters are kept.  The query is re-encoded in sorted order so
// that equivalent requests produce identical cache keys.
func (o Options) Apply(u *url.URL) *url.URL {
	r := *u
	q := r.Query()
	setOrDelete := func(key, value string) {
		if value == "" {
			q.Del(key)
		} else {
			q.Set(key, value)
		}
	}

	var size string
	if o.Size > 0 {
		size = strconv.Itoa(o.size())
	}
	setOrDelete("s", size)
	setOrDelete("r", string(o.Rating))
	setOrDelete("d", string(o.Default))
	force := ""
	if o.ForceDefault {
		force = "y"
	}
	setOrDelete("f", force)

	r.RawQuery = q.Encode()
	return &r
}

// EmailHash returns the hash the remote server identifies an email address
// by: hex encoded SHA-256 of the trimmed, lowercased address.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// AvatarURL returns the URL of the avatar for hash, rendered with opt.
func AvatarURL(hash string, opt Options) *url.URL {
	u, _ := url.Parse(DefaultBaseURL)
	u = u.JoinPath(hash)
	return opt.Apply(u)
}

// DownloadOptions configure a single Service.Download call.
type DownloadOptions struct {
	Options

	// If true, any cached image is ignored and the image is fetched again.
	// The cache is still updated with the new image.
	ForceRefresh bool

	// Processor turns the downloaded bytes into an image.  If nil,
	// DefaultProcessor is used.
	Processor Processor
}
