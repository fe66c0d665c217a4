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
	"sort"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/lakewriter/internal/partition"
	"github.com/cardinalhq/lakewriter/testhelpers"
)

// testResult holds every row one recording writer received.
type testResult struct {
	columns   [][]int32
	partition *partition.Value
}

func (r *testResult) SetPartition(v *partition.Value) {
	r.partition = v
}

type recordingWriter struct {
	batches  []arrow.Record
	writeErr error
	flushErr error
	extra    int
	flushed  bool
	aborted  bool
}

func (w *recordingWriter) Write(_ context.Context, batch arrow.Record) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	batch.Retain()
	w.batches = append(w.batches, batch)
	return nil
}

func (w *recordingWriter) Flush(_ context.Context) ([]*testResult, error) {
	defer w.release()
	w.flushed = true
	if w.flushErr != nil {
		return nil, w.flushErr
	}
	res := &testResult{}
	for _, b := range w.batches {
		if res.columns == nil {
			res.columns = make([][]int32, b.NumCols())
		}
		for i := range res.columns {
			res.columns[i] = append(res.columns[i], b.Column(i).(*array.Int32).Int32Values()...)
		}
	}
	out := []*testResult{res}
	for range w.extra {
		out = append(out, &testResult{})
	}
	return out, nil
}

func (w *recordingWriter) Abort() {
	w.aborted = true
	w.release()
}

func (w *recordingWriter) release() {
	for _, b := range w.batches {
		b.Release()
	}
	w.batches = nil
}

// recordingBuilder builds recordingWriters. failWriteAt and failFlushAt are
// 1-based build ordinals whose writer fails the named call. Each writer
// returns extraResults empty results after the one holding its rows.
type recordingBuilder struct {
	writers      []*recordingWriter
	schemas      []*arrow.Schema
	buildErr     error
	failWriteAt  int
	failFlushAt  int
	extraResults int
}

func (b *recordingBuilder) Build(_ context.Context, schema *arrow.Schema) (Writer[*testResult], error) {
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	w := &recordingWriter{extra: b.extraResults}
	b.writers = append(b.writers, w)
	b.schemas = append(b.schemas, schema)
	if len(b.writers) == b.failWriteAt {
		w.writeErr = errors.New("disk full")
	}
	if len(b.writers) == b.failFlushAt {
		w.flushErr = errors.New("upload rejected")
	}
	return w, nil
}

func col1Identity() partition.Spec {
	return partition.Spec{
		ID:     1,
		Fields: []partition.Field{{SourceID: 1, FieldID: 1000, Transform: partition.Identity{}, Name: "col1"}},
	}
}

func newFanout(t *testing.T, inner Builder[*testResult], schema *arrow.Schema, opts ...FanoutOption) *FanoutPartitionedWriter[*testResult] {
	t.Helper()
	spec := col1Identity()
	partitionType, err := spec.PartitionType(schema)
	require.NoError(t, err)
	w, err := NewFanoutPartitionedWriterBuilder(inner, partitionType, spec, opts...).BuildFanout(context.Background(), schema)
	require.NoError(t, err)
	return w
}

func resultsByPath(results []*testResult) map[string][][]int32 {
	out := make(map[string][][]int32, len(results))
	for _, r := range results {
		out[r.partition.Path()] = r.columns
	}
	return out
}

func TestFanoutThreePartitions(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	inner := &recordingBuilder{}
	w := newFanout(t, inner, schema)

	batch := testhelpers.Int32Batch(t, schema, [][]int32{
		{1, 2, 3, 1, 2, 3, 1, 2, 3},
		{1, 1, 1, 2, 2, 2, 3, 3, 3},
	})
	defer batch.Release()

	require.NoError(t, w.Write(ctx, batch))
	assert.Equal(t, 3, w.Metrics().PartitionNum)

	results, err := w.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, w.Metrics().PartitionNum)

	assert.Equal(t, map[string][][]int32{
		"col1=1": {{1, 1, 1}, {1, 2, 3}},
		"col1=2": {{2, 2, 2}, {1, 2, 3}},
		"col1=3": {{3, 3, 3}, {1, 2, 3}},
	}, resultsByPath(results))

	for _, r := range results {
		v, ok := r.partition.Get("col1")
		require.True(t, ok)
		assert.Equal(t, r.columns[0][0], v)
	}
	for _, s := range inner.schemas {
		assert.True(t, s.Equal(schema))
	}
}

func TestFanoutResultsOwnTheirPartitionValue(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	w := newFanout(t, &recordingBuilder{extraResults: 1}, schema)

	batch := testhelpers.Int32Batch(t, schema, [][]int32{{4, 4, 5}, {1, 2, 3}})
	defer batch.Release()
	require.NoError(t, w.Write(ctx, batch))

	results, err := w.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// Results come out grouped by partition in key order.
	for i := 0; i < len(results); i += 2 {
		first, second := results[i].partition, results[i+1].partition
		require.True(t, first.Equal(second))
		require.NotSame(t, first, second)

		want := second.Values[0]
		first.Values[0] = int32(99)
		assert.Equal(t, want, second.Values[0])
	}
}

func TestFanoutCarriesTrailingColumn(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(3)
	w := newFanout(t, &recordingBuilder{}, schema)

	batch := testhelpers.Int32Batch(t, schema, [][]int32{
		{1, 2, 3, 1, 2, 3, 1, 2, 3},
		{1, 1, 1, 2, 2, 2, 3, 3, 3},
		{3, 2, 1, 1, 3, 2, 2, 1, 3},
	})
	defer batch.Release()

	require.NoError(t, w.Write(ctx, batch))
	results, err := w.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string][][]int32{
		"col1=1": {{1, 1, 1}, {1, 2, 3}, {3, 1, 2}},
		"col1=2": {{2, 2, 2}, {1, 2, 3}, {2, 3, 1}},
		"col1=3": {{3, 3, 3}, {1, 2, 3}, {1, 2, 3}},
	}, resultsByPath(results))
}

func TestFanoutReusesPartitionWriters(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	inner := &recordingBuilder{}
	w := newFanout(t, inner, schema)

	first := testhelpers.Int32Batch(t, schema, [][]int32{{1, 2}, {10, 20}})
	defer first.Release()
	second := testhelpers.Int32Batch(t, schema, [][]int32{{2, 3, 1}, {21, 30, 11}})
	defer second.Release()

	require.NoError(t, w.Write(ctx, first))
	assert.Equal(t, 2, w.Metrics().PartitionNum)
	require.NoError(t, w.Write(ctx, second))
	assert.Equal(t, 3, w.Metrics().PartitionNum)
	assert.Len(t, inner.writers, 3)

	results, err := w.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][][]int32{
		"col1=1": {{1, 1}, {10, 11}},
		"col1=2": {{2, 2}, {20, 21}},
		"col1=3": {{3}, {30}},
	}, resultsByPath(results))

	// A flushed writer starts over with fresh partition writers.
	require.NoError(t, w.Write(ctx, first))
	assert.Len(t, inner.writers, 5)
	results, err = w.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFanoutEmptyFlushAndEmptyBatch(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	inner := &recordingBuilder{}
	w := newFanout(t, inner, schema)

	empty := testhelpers.Int32Batch(t, schema, [][]int32{{}, {}})
	defer empty.Release()
	require.NoError(t, w.Write(ctx, empty))
	assert.Equal(t, 0, w.Metrics().PartitionNum)
	assert.Empty(t, inner.writers)

	results, err := w.Flush(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFanoutRowConservation(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	w := newFanout(t, &recordingBuilder{}, schema, WithFlushConcurrency(3))

	var total int
	for round := range int32(4) {
		keys := []int32{round, 7, round % 2, 9, 7}
		ords := []int32{round*10 + 0, round*10 + 1, round*10 + 2, round*10 + 3, round*10 + 4}
		batch := testhelpers.Int32Batch(t, schema, [][]int32{keys, ords})
		require.NoError(t, w.Write(ctx, batch))
		batch.Release()
		total += len(keys)
	}

	results, err := w.Flush(ctx)
	require.NoError(t, err)

	var ords []int32
	for _, r := range results {
		v, _ := r.partition.Get("col1")
		for i, k := range r.columns[0] {
			assert.Equal(t, v, k, "row routed to its own partition")
			ords = append(ords, r.columns[1][i])
		}
		assert.True(t, sort.SliceIsSorted(r.columns[1], func(i, j int) bool { return r.columns[1][i] < r.columns[1][j] }))
	}
	assert.Len(t, ords, total)
}

func TestFanoutBuildRejectsSchemaWithoutSourceColumn(t *testing.T) {
	spec := col1Identity()
	partitionType, err := spec.PartitionType(testhelpers.Int32Schema(2))
	require.NoError(t, err)

	other := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32, Metadata: partition.FieldIDMetadata(5)},
	}, nil)
	builder := NewFanoutPartitionedWriterBuilder[*testResult](&recordingBuilder{}, partitionType, spec)
	_, err = builder.Build(context.Background(), other)
	require.ErrorIs(t, err, partition.ErrSchemaMismatch)
}

func TestFanoutBuilderIsAReusableValue(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)
	spec := col1Identity()
	partitionType, err := spec.PartitionType(schema)
	require.NoError(t, err)

	inner := &recordingBuilder{}
	builder := NewFanoutPartitionedWriterBuilder[*testResult](inner, partitionType, spec)
	spec.Fields[0].Name = "mutated"
	clone := builder

	a, err := builder.BuildFanout(ctx, schema)
	require.NoError(t, err)
	b, err := clone.BuildFanout(ctx, schema)
	require.NoError(t, err)

	batch := testhelpers.Int32Batch(t, schema, [][]int32{{1, 2}, {1, 2}})
	defer batch.Release()
	require.NoError(t, a.Write(ctx, batch))
	assert.Equal(t, 2, a.Metrics().PartitionNum)
	assert.Equal(t, 0, b.Metrics().PartitionNum)

	results, err := a.Flush(ctx)
	require.NoError(t, err)
	for _, r := range results {
		_, ok := r.partition.Get("col1")
		assert.True(t, ok)
	}
}

func TestFanoutWriteFailures(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)

	t.Run("transform failure leaves state untouched", func(t *testing.T) {
		spec := partition.Spec{
			ID:     2,
			Fields: []partition.Field{{SourceID: 1, FieldID: 1000, Transform: partition.Truncate{W: 10}, Name: "c"}},
		}
		partitionType, err := spec.PartitionType(schema)
		require.NoError(t, err)
		inner := &recordingBuilder{}
		w, err := NewFanoutPartitionedWriterBuilder[*testResult](inner, partitionType, spec).BuildFanout(ctx, schema)
		require.NoError(t, err)

		batch := testhelpers.Int32Batch(t, schema, [][]int32{{1, -2147483648}, {1, 2}})
		defer batch.Release()
		require.ErrorIs(t, w.Write(ctx, batch), partition.ErrTransform)
		assert.Equal(t, 0, w.Metrics().PartitionNum)
		assert.Empty(t, inner.writers)
	})

	t.Run("inner build failure", func(t *testing.T) {
		buildErr := errors.New("no space")
		w := newFanout(t, &recordingBuilder{buildErr: buildErr}, schema)
		batch := testhelpers.Int32Batch(t, schema, [][]int32{{1}, {1}})
		defer batch.Release()
		require.ErrorIs(t, w.Write(ctx, batch), buildErr)
		assert.Equal(t, 0, w.Metrics().PartitionNum)
	})

	t.Run("inner write failure keeps partition writer", func(t *testing.T) {
		inner := &recordingBuilder{failWriteAt: 1}
		w := newFanout(t, inner, schema)
		batch := testhelpers.Int32Batch(t, schema, [][]int32{{4, 4}, {1, 2}})
		defer batch.Release()
		require.Error(t, w.Write(ctx, batch))
		assert.Equal(t, 1, w.Metrics().PartitionNum)
		w.Abort()
		assert.Equal(t, 0, w.Metrics().PartitionNum)
		assert.True(t, inner.writers[0].aborted)
	})
}

func TestFanoutFlushFailure(t *testing.T) {
	ctx := context.Background()
	schema := testhelpers.Int32Schema(2)

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			inner := &recordingBuilder{failFlushAt: 2}
			w := newFanout(t, inner, schema, WithFlushConcurrency(concurrency))
			batch := testhelpers.Int32Batch(t, schema, [][]int32{{1, 2, 3}, {1, 2, 3}})
			defer batch.Release()
			require.NoError(t, w.Write(ctx, batch))

			results, err := w.Flush(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "upload rejected")
			assert.Nil(t, results)
			assert.Equal(t, 0, w.Metrics().PartitionNum)
			for _, iw := range inner.writers {
				assert.True(t, iw.aborted, "every drained writer is aborted")
			}
		})
	}
}

func TestFanoutFlushCancelled(t *testing.T) {
	schema := testhelpers.Int32Schema(2)
	inner := &recordingBuilder{}
	w := newFanout(t, inner, schema, WithFlushConcurrency(2))
	batch := testhelpers.Int32Batch(t, schema, [][]int32{{1, 2, 3}, {1, 2, 3}})
	defer batch.Release()
	require.NoError(t, w.Write(context.Background(), batch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Flush(ctx)
	require.ErrorIs(t, err, context.Canceled)
	for _, iw := range inner.writers {
		assert.True(t, iw.aborted)
	}
}

func TestConfigOptions(t *testing.T) {
	assert.Equal(t, 1, DefaultConfig().FlushConcurrency)

	var o fanoutOptions
	for _, opt := range (Config{FlushConcurrency: 0}).Options() {
		opt(&o)
	}
	assert.Equal(t, 1, o.flushConcurrency)
	for _, opt := range (Config{FlushConcurrency: 8}).Options() {
		opt(&o)
	}
	assert.Equal(t, 8, o.flushConcurrency)
}
