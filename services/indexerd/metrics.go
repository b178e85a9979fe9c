package main

import "veritynet/observability"

// Metrics exposes Prometheus collectors for indexer instrumentation.
type Metrics = observability.IndexerMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Indexer() }
