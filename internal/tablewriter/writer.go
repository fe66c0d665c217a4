// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package tablewriter routes record batches to per-partition inner writers
// and collects their results.
package tablewriter

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/cardinalhq/lakewriter/internal/partition"
)

// Writer accepts record batches and yields results on Flush. Write does not
// take ownership of the batch; an implementation that keeps it must Retain it.
type Writer[R any] interface {
	Write(ctx context.Context, batch arrow.Record) error
	Flush(ctx context.Context) ([]R, error)
}

// Builder creates writers for a schema. One builder serves any number of
// Build calls.
type Builder[R any] interface {
	Build(ctx context.Context, schema *arrow.Schema) (Writer[R], error)
}

// PartitionedResult is a writer result that can carry the partition value of
// the rows it describes.
type PartitionedResult interface {
	SetPartition(value *partition.Value)
}

// Aborter is implemented by writers that can discard their output. Abort may
// be called after a Flush, successful or not, and then discards whatever that
// Flush produced.
type Aborter interface {
	Abort()
}

// Config holds fanout tuning read from configuration.
type Config struct {
	// FlushConcurrency bounds how many partition writers are finalized at
	// once during Flush. Values below 2 flush sequentially.
	FlushConcurrency int `mapstructure:"flush_concurrency"`
}

// DefaultConfig returns the sequential flush configuration.
func DefaultConfig() Config {
	return Config{FlushConcurrency: 1}
}

// Options converts the config into builder options.
func (c Config) Options() []FanoutOption {
	return []FanoutOption{WithFlushConcurrency(c.FlushConcurrency)}
}
