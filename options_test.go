// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"net/url"
	"testing"
)

var emptyOptions = Options{}

func TestOptions_String(t *testing.T) {
	tests := []struct {
		Options Options
		String  string
	}{
		{
			emptyOptions,
			"",
		},
		{
			Options{Size: 80, Rating: RatingPG, Default: DefaultIdenticon, ForceDefault: true},
			"d=identicon,f,r=pg,s=80",
		},
		{
			Options{Size: 5000},
			"s=2048",
		},
		{
			Options{Default: "https://example.com/a.png"},
			"d=https%3A%2F%2Fexample.com%2Fa.png",
		},
	}

	for i, tt := range tests {
		if got, want := tt.Options.String(), tt.String; got != want {
			t.Errorf("%d. Options.String returned %v, want %v", i, got, want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		Input   string
		Options Options
	}{
		{"", emptyOptions},
		{"x", emptyOptions},
		{"0", emptyOptions},
		{"-1", emptyOptions},
		{",,,,", emptyOptions},
		{"r=z", emptyOptions},
		{"s=x", emptyOptions},

		// size variations
		{"80", Options{Size: 80}},
		{"s=80", Options{Size: 80}},

		// additional options
		{"r=pg", Options{Rating: RatingPG}},
		{"r=PG", Options{Rating: RatingPG}},
		{"d=retro", Options{Default: DefaultRetro}},
		{"d=404", Options{Default: DefaultNotFound}},
		{"d=https%3A%2F%2Fexample.com%2Fa.png", Options{Default: "https://example.com/a.png"}},
		{"f", Options{ForceDefault: true}},

		// duplicate options (last one wins)
		{"80,s=40", Options{Size: 40}},
		{"r=g,r=x", Options{Rating: RatingX}},

		// mix of options, in any order
		{"f,d=mp,r=g,120", Options{Size: 120, Rating: RatingG, Default: DefaultMysteryPerson, ForceDefault: true}},
	}

	for _, tt := range tests {
		if got, want := ParseOptions(tt.Input), tt.Options; got != want {
			t.Errorf("ParseOptions(%q) returned %#v, want %#v", tt.Input, got, want)
		}
	}
}

// ParseOptions is the inverse of Options.String for valid options.
func TestParseOptions_String(t *testing.T) {
	tests := []Options{
		emptyOptions,
		{Size: 80},
		{Size: 80, Rating: RatingR, Default: DefaultWavatar, ForceDefault: true},
		{Default: "https://example.com/a.png?x=1"},
	}

	for _, o := range tests {
		if got := ParseOptions(o.String()); got != o {
			t.Errorf("ParseOptions(%q) returned %#v, want %#v", o.String(), got, o)
		}
	}
}

func TestOptions_Apply(t *testing.T) {
	tests := []struct {
		url     string
		options Options
		want    string
	}{
		{"https://gravatar.com/avatar/abc", emptyOptions, "https://gravatar.com/avatar/abc"},
		{"https://gravatar.com/avatar/abc", Options{Size: 80}, "https://gravatar.com/avatar/abc?s=80"},
		{"https://gravatar.com/avatar/abc?x=1", Options{Size: 80, ForceDefault: true}, "https://gravatar.com/avatar/abc?f=y&s=80&x=1"},

		// existing options are replaced or removed
		{"https://gravatar.com/avatar/abc?s=40&r=x", Options{Size: 80}, "https://gravatar.com/avatar/abc?s=80"},
		{"https://gravatar.com/avatar/abc?s=40&f=y&x=1", emptyOptions, "https://gravatar.com/avatar/abc?x=1"},

		// default image URLs are escaped
		{"https://gravatar.com/avatar/abc", Options{Default: "https://example.com/a.png"}, "https://gravatar.com/avatar/abc?d=https%3A%2F%2Fexample.com%2Fa.png"},
	}

	for _, tt := range tests {
		u, _ := url.Parse(tt.url)
		if got, want := tt.options.Apply(u).String(), tt.want; got != want {
			t.Errorf("Apply(%q) returned %q, want %q", tt.url, got, want)
		}
		if got, want := u.String(), tt.url; got != want {
			t.Errorf("Apply(%q) modified input URL to %q", want, got)
		}
	}
}

func TestOptionsFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  Options
	}{
		{"", emptyOptions},
		{"s=80&r=pg&d=retro&f=y", Options{Size: 80, Rating: RatingPG, Default: DefaultRetro, ForceDefault: true}},
		{"s=0&r=bad&f=n", emptyOptions},
		{"f=true", Options{ForceDefault: true}},
		{"f=1", Options{ForceDefault: true}},
	}

	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		if got := OptionsFromQuery(q); got != tt.want {
			t.Errorf("OptionsFromQuery(%q) returned %#v, want %#v", tt.query, got, tt.want)
		}
	}
}

func TestEmailHash(t *testing.T) {
	const want = "84059b07d4be67b806386c0aad8070a23f18836bbaae342275dc0a83414c32ee"
	for _, email := range []string{
		"myemailaddress@example.com",
		"MyEmailAddress@example.com",
		"  MyEmailAddress@example.com \n",
	} {
		if got := EmailHash(email); got != want {
			t.Errorf("EmailHash(%q) returned %q, want %q", email, got, want)
		}
	}
}

func TestAvatarURL(t *testing.T) {
	tests := []struct {
		hash    string
		options Options
		want    string
	}{
		{"abc", emptyOptions, "https://gravatar.com/avatar/abc"},
		{"abc", Options{Size: 3000, Default: DefaultNotFound}, "https://gravatar.com/avatar/abc?d=404&s=2048"},
	}

	for _, tt := range tests {
		if got, want := AvatarURL(tt.hash, tt.options).String(), tt.want; got != want {
			t.Errorf("AvatarURL(%q, %v) returned %q, want %q", tt.hash, tt.options, got, want)
		}
	}
}
