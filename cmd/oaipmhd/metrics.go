// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oaipmh",
		Name:      "requests_total",
		Help:      "OAI-PMH requests served, by verb.",
	}, []string{"verb"})
	metricProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oaipmh",
		Name:      "protocol_errors_total",
		Help:      "Protocol errors returned to harvesters, by error code.",
	}, []string{"code"})
	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oaipmh",
		Name:      "request_duration_seconds",
		Help:      "Time spent answering one OAI-PMH request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"verb"})
)

// verbLabel folds arbitrary client input into a bounded label set.
func verbLabel(verb string) string {
	switch verb {
	case "Identify", "GetRecord", "GetMetadata", "ListIdentifiers",
		"ListMetadataFormats", "ListRecords", "ListSets":
		return verb
	default:
		return "invalid"
	}
}
