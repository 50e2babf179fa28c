// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "cache_hits_total",
		Help:      "Number of requests served from a ready cache entry.",
	})
	cacheJoinCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "cache_joins_total",
		Help:      "Number of requests that joined a fetch already in progress.",
	})
	cacheMissCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "cache_misses_total",
		Help:      "Number of requests that started a new fetch.",
	})
	remoteFetchCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "remote_fetches_total",
		Help:      "Total remote image fetches.",
	})
	remoteFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "remote_fetch_errors_total",
		Help:      "Total image fetch failures, by kind.",
	}, []string{"kind"})
	responseCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagefetch",
		Name:      "response_cache_hits_total",
		Help:      "Number of remote fetches answered by the response cache.",
	})
	fetchSummary = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagefetch",
		Name:      "fetch_seconds",
		Help:      "Time taken for remote fetches in seconds.",
	})
	processingSummary = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagefetch",
		Name:      "processing_seconds",
		Help:      "Time taken for image processing in seconds.",
	})
)

func init() {
	prometheus.MustRegister(cacheHitCount)
	prometheus.MustRegister(cacheJoinCount)
	prometheus.MustRegister(cacheMissCount)
	prometheus.MustRegister(remoteFetchCount)
	prometheus.MustRegister(remoteFetchErrors)
	prometheus.MustRegister(responseCacheHits)
	prometheus.MustRegister(fetchSummary)
	prometheus.MustRegister(processingSummary)
}
