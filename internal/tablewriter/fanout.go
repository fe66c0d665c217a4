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

package tablewriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/lakewriter/internal/partition"
)

// FanoutOption configures a FanoutPartitionedWriterBuilder.
type FanoutOption func(*fanoutOptions)

type fanoutOptions struct {
	flushConcurrency int
}

// WithFlushConcurrency finalizes up to n partition writers at once in Flush.
func WithFlushConcurrency(n int) FanoutOption {
	return func(o *fanoutOptions) {
		o.flushConcurrency = max(n, 1)
	}
}

// FanoutPartitionedWriterBuilder builds writers that route each row to an
// inner writer for its partition. It is a value type; a copy is an
// independent builder.
type FanoutPartitionedWriterBuilder[R PartitionedResult] struct {
	inner         Builder[R]
	partitionType *arrow.StructType
	spec          partition.Spec
	opts          fanoutOptions
}

// NewFanoutPartitionedWriterBuilder returns a builder that uses inner as the
// template for per-partition writers. partitionType must be the struct type
// spec produces for the schemas passed to Build.
func NewFanoutPartitionedWriterBuilder[R PartitionedResult](
	inner Builder[R],
	partitionType *arrow.StructType,
	spec partition.Spec,
	opts ...FanoutOption,
) FanoutPartitionedWriterBuilder[R] {
	o := fanoutOptions{flushConcurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	spec.Fields = slices.Clone(spec.Fields)
	return FanoutPartitionedWriterBuilder[R]{
		inner:         inner,
		partitionType: partitionType,
		spec:          spec,
		opts:          o,
	}
}

// Build implements Builder.
func (b FanoutPartitionedWriterBuilder[R]) Build(ctx context.Context, schema *arrow.Schema) (Writer[R], error) {
	w, err := b.BuildFanout(ctx, schema)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// BuildFanout resolves the spec against schema and returns an empty fanout
// writer. No inner writer is built until a partition receives rows.
func (b FanoutPartitionedWriterBuilder[R]) BuildFanout(_ context.Context, schema *arrow.Schema) (*FanoutPartitionedWriter[R], error) {
	if b.inner == nil {
		return nil, errors.New("fanout writer: inner builder cannot be nil")
	}
	projector, err := partition.NewFieldProjector(schema, b.spec.ColumnIDs())
	if err != nil {
		return nil, fmt.Errorf("resolve partition columns: %w", err)
	}
	splitter, err := partition.NewSplitter(projector, b.spec, b.partitionType)
	if err != nil {
		return nil, fmt.Errorf("create partition splitter: %w", err)
	}
	return &FanoutPartitionedWriter[R]{
		inner:    b.inner,
		schema:   schema,
		splitter: splitter,
		writers:  make(map[partition.Key]Writer[R]),
		opts:     b.opts,
	}, nil
}

// FanoutMetrics is a point-in-time view of a fanout writer.
type FanoutMetrics struct {
	// PartitionNum is the number of partitions with an open inner writer.
	PartitionNum int
}

// FanoutPartitionedWriter routes rows to one inner writer per partition key.
// It is not safe for concurrent use.
type FanoutPartitionedWriter[R PartitionedResult] struct {
	inner    Builder[R]
	schema   *arrow.Schema
	splitter *partition.Splitter
	writers  map[partition.Key]Writer[R]
	opts     fanoutOptions
}

// Write splits batch by partition and delivers each group to its partition
// writer, building writers for partitions seen for the first time. If an
// inner writer fails, groups delivered earlier in the call stay delivered.
func (w *FanoutPartitionedWriter[R]) Write(ctx context.Context, batch arrow.Record) error {
	groups, err := w.splitter.Split(batch)
	if err != nil {
		return fmt.Errorf("split batch: %w", err)
	}
	defer func() {
		for _, sub := range groups {
			sub.Release()
		}
	}()

	for key, sub := range groups {
		writer, ok := w.writers[key]
		if !ok {
			writer, err = w.inner.Build(ctx, w.schema)
			if err != nil {
				return fmt.Errorf("build partition writer: %w", err)
			}
			w.writers[key] = writer
			w.logNewPartition(ctx, key)
		}
		if err := writer.Write(ctx, sub); err != nil {
			return fmt.Errorf("write to partition writer: %w", err)
		}
	}
	return nil
}

func (w *FanoutPartitionedWriter[R]) logNewPartition(ctx context.Context, key partition.Key) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	value, err := w.splitter.KeyToValue(key)
	if err != nil {
		slog.Debug("Opened partition writer", slog.Any("error", err))
		return
	}
	slog.Debug("Opened partition writer",
		slog.String("partition", value.Path()),
		slog.Int("openPartitions", len(w.writers)))
}

type drainedWriter[R any] struct {
	value  *partition.Value
	writer Writer[R]
}

// Flush finalizes every open partition writer, stamps each result with its
// partition value and returns the combined results. The fanout writer is
// empty afterwards whether or not Flush succeeds. On failure no results are
// returned and every drained writer is aborted.
func (w *FanoutPartitionedWriter[R]) Flush(ctx context.Context) ([]R, error) {
	writers := w.writers
	w.writers = make(map[partition.Key]Writer[R])

	keys := make([]partition.Key, 0, len(writers))
	for key := range writers {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	drained := make([]drainedWriter[R], len(keys))
	for i, key := range keys {
		drained[i].writer = writers[key]
	}
	for i, key := range keys {
		value, err := w.splitter.KeyToValue(key)
		if err != nil {
			abortWriters(drained)
			return nil, fmt.Errorf("partition value: %w", err)
		}
		drained[i].value = value
	}

	perPartition := make([][]R, len(drained))
	if err := w.finalize(ctx, drained, perPartition); err != nil {
		abortWriters(drained)
		return nil, err
	}

	var results []R
	for _, rs := range perPartition {
		results = append(results, rs...)
	}
	slog.Info("Flushed partitioned writer",
		slog.Int("partitions", len(drained)),
		slog.Int("results", len(results)))
	return results, nil
}

func (w *FanoutPartitionedWriter[R]) finalize(ctx context.Context, drained []drainedWriter[R], out [][]R) error {
	flushOne := func(ctx context.Context, i int) error {
		rs, err := drained[i].writer.Flush(ctx)
		if err != nil {
			return fmt.Errorf("flush partition %s: %w", drained[i].value.Path(), err)
		}
		for _, r := range rs {
			r.SetPartition(drained[i].value.Clone())
		}
		out[i] = rs
		return nil
	}

	if w.opts.flushConcurrency <= 1 {
		for i := range drained {
			if err := flushOne(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.flushConcurrency)
	for i := range drained {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return flushOne(gctx, i)
		})
	}
	return g.Wait()
}

func abortWriters[R any](drained []drainedWriter[R]) {
	for _, d := range drained {
		if a, ok := d.writer.(Aborter); ok {
			a.Abort()
		}
	}
}

// Metrics reports the current number of open partitions.
func (w *FanoutPartitionedWriter[R]) Metrics() FanoutMetrics {
	return FanoutMetrics{PartitionNum: len(w.writers)}
}

// Abort discards every open partition writer.
func (w *FanoutPartitionedWriter[R]) Abort() {
	writers := w.writers
	w.writers = make(map[partition.Key]Writer[R])
	for _, writer := range writers {
		if a, ok := writer.(Aborter); ok {
			a.Abort()
		}
	}
	if len(writers) > 0 {
		slog.Info("Aborted partitioned writer", slog.Int("partitions", len(writers)))
	}
}
