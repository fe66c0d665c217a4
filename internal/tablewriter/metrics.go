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

	"github.com/apache/arrow-go/v18/arrow"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// MetricsOption configures a MetricsWriterBuilder.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	attrs []attribute.KeyValue
}

// WithMetricAttributes attaches attrs to every gauge update. Writers that
// report with the same attributes share one series.
func WithMetricAttributes(attrs ...attribute.KeyValue) MetricsOption {
	return func(o *metricsOptions) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// MetricsWriterBuilder wraps a fanout builder so that every writer it builds
// keeps an open-partitions gauge in step with its partition count.
type MetricsWriterBuilder[R PartitionedResult] struct {
	inner FanoutPartitionedWriterBuilder[R]
	gauge otelmetric.Int64UpDownCounter
	opts  []otelmetric.AddOption
}

// NewMetricsWriterBuilder wraps inner. A nil gauge selects the package
// gauge lakewriter.fanout.partitions.open.
func NewMetricsWriterBuilder[R PartitionedResult](
	inner FanoutPartitionedWriterBuilder[R],
	gauge otelmetric.Int64UpDownCounter,
	opts ...MetricsOption,
) MetricsWriterBuilder[R] {
	if gauge == nil {
		gauge = openPartitionsGauge
	}
	var o metricsOptions
	for _, opt := range opts {
		opt(&o)
	}
	var addOpts []otelmetric.AddOption
	if len(o.attrs) > 0 {
		addOpts = append(addOpts, otelmetric.WithAttributes(o.attrs...))
	}
	return MetricsWriterBuilder[R]{inner: inner, gauge: gauge, opts: addOpts}
}

// Build implements Builder.
func (b MetricsWriterBuilder[R]) Build(ctx context.Context, schema *arrow.Schema) (Writer[R], error) {
	w, err := b.BuildMetrics(ctx, schema)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// BuildMetrics builds the wrapped fanout writer.
func (b MetricsWriterBuilder[R]) BuildMetrics(ctx context.Context, schema *arrow.Schema) (*MetricsWriter[R], error) {
	inner, err := b.inner.BuildFanout(ctx, schema)
	if err != nil {
		return nil, err
	}
	return &MetricsWriter[R]{inner: inner, gauge: b.gauge, opts: b.opts}, nil
}

// MetricsWriter forwards to a fanout writer and, after every call, adds the
// change in open partitions to the gauge.
type MetricsWriter[R PartitionedResult] struct {
	inner    *FanoutPartitionedWriter[R]
	gauge    otelmetric.Int64UpDownCounter
	opts     []otelmetric.AddOption
	reported int
}

func (w *MetricsWriter[R]) Write(ctx context.Context, batch arrow.Record) error {
	err := w.inner.Write(ctx, batch)
	w.report(ctx)
	return err
}

func (w *MetricsWriter[R]) Flush(ctx context.Context) ([]R, error) {
	results, err := w.inner.Flush(ctx)
	w.report(ctx)
	return results, err
}

// Abort aborts the wrapped writer and returns its partitions to the gauge.
func (w *MetricsWriter[R]) Abort() {
	w.inner.Abort()
	w.report(context.Background())
}

func (w *MetricsWriter[R]) Metrics() FanoutMetrics {
	return w.inner.Metrics()
}

func (w *MetricsWriter[R]) report(ctx context.Context) {
	current := w.inner.Metrics().PartitionNum
	if delta := current - w.reported; delta != 0 {
		w.gauge.Add(context.WithoutCancel(ctx), int64(delta), w.opts...)
		w.reported = current
	}
}
