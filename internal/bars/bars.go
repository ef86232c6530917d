// Package bars implements streaming bar aggregation: fixed-count tick
// bars, threshold-triggered range bars and brick-based renko charts.
//
// Each builder owns one mutable accumulator for exactly one symbol.
// Builders are not safe for concurrent use: routing must guarantee all
// events for one symbol reach the same builder instance (single writer
// per symbol), which the aggregator service enforces by sharding symbols
// across workers.
//
// Emitted bars are immutable and never revised. Accumulators reset only
// on emission, so the sum of emitted bar volumes over any closed interval
// equals the sum of raw input volumes over that interval.
package bars

import (
	"errors"
)

// ErrInvalidConfiguration reports a zero or negative tick size, range
// threshold or brick size. Builders fail fast at construction and never
// silently clamp.
var ErrInvalidConfiguration = errors.New("invalid bar configuration")
