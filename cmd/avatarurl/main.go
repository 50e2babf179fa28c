// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// The avatarurl tool prints the avatar URL, and so the imagefetch cache key,
// for an email address or avatar hash.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"willnorris.com/go/imagefetch"
)

var options = flag.String("options", "", "avatar options, such as \"s=80,r=pg,d=identicon\"")

func main() {
	flag.Parse()

	hash, u, err := avatarURL(flag.Arg(0), *options)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("hash: %v\n", hash)
	fmt.Printf("url: %v\n", u)
	fmt.Printf("cache key: %v\n", imagefetch.CacheKey(u))
}

// avatarURL returns the avatar hash and URL for s, which is an email
// address, a hash, or an existing avatar URL.  Options in an existing URL
// are kept unless opts overrides them.
func avatarURL(s, opts string) (string, *url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, errors.New("avatarurl [-options s=80,...] <email, hash, or URL>")
	}

	hash := s
	var opt imagefetch.Options
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return "", nil, fmt.Errorf("unable to parse URL: %w", err)
		}
		hash = path.Base(u.Path)
		if hash == "/" || hash == "." {
			return "", nil, fmt.Errorf("no avatar hash in URL: %v", s)
		}
		opt = imagefetch.OptionsFromQuery(u.Query())
	case strings.Contains(s, "@"):
		hash = imagefetch.EmailHash(s)
	}

	opt = override(opt, imagefetch.ParseOptions(opts))
	return hash, imagefetch.AvatarURL(hash, opt), nil
}

// override returns base with every option set in o replaced.
func override(base, o imagefetch.Options) imagefetch.Options {
	if o.Size > 0 {
		base.Size = o.Size
	}
	if o.Rating != "" {
		base.Rating = o.Rating
	}
	if o.Default != "" {
		base.Default = o.Default
	}
	if o.ForceDefault {
		base.ForceDefault = true
	}
	return base
}
