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

package partition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Splitter groups the rows of a record batch by partition key.
type Splitter struct {
	projector     *FieldProjector
	fields        []Field
	funcs         []Func
	partitionType *arrow.StructType
	codec         *keyCodec
	mem           memory.Allocator
}

// NewSplitter binds spec's transforms to the projector's source columns.
// The projector must expose exactly the spec's source columns in field
// order, and partitionType must hold one field per spec field with the
// transform's result type.
func NewSplitter(projector *FieldProjector, spec Spec, partitionType *arrow.StructType) (*Splitter, error) {
	if projector == nil {
		return nil, fmt.Errorf("%w: projector cannot be nil", ErrSchemaMismatch)
	}
	if partitionType == nil {
		return nil, fmt.Errorf("%w: partition type cannot be nil", ErrSchemaMismatch)
	}
	if !slices.Equal(projector.ColumnIDs(), spec.ColumnIDs()) {
		return nil, fmt.Errorf("%w: projector columns %v do not match spec source columns %v",
			ErrSchemaMismatch, projector.ColumnIDs(), spec.ColumnIDs())
	}
	if partitionType.NumFields() != len(spec.Fields) {
		return nil, fmt.Errorf("%w: partition type has %d fields, spec has %d",
			ErrSchemaMismatch, partitionType.NumFields(), len(spec.Fields))
	}

	sourceTypes := projector.Types()
	funcs := make([]Func, len(spec.Fields))
	for i, f := range spec.Fields {
		if f.Transform == nil {
			return nil, fmt.Errorf("%w: partition field %q has no transform", ErrTransform, f.Name)
		}
		resultType, err := f.Transform.ResultType(sourceTypes[i])
		if err != nil {
			return nil, fmt.Errorf("partition field %q: %w", f.Name, err)
		}
		if declared := partitionType.Field(i).Type; !arrow.TypeEqual(declared, resultType) {
			return nil, fmt.Errorf("%w: partition field %q declared as %s, %s produces %s",
				ErrSchemaMismatch, f.Name, declared, f.Transform, resultType)
		}
		fn, err := f.Transform.Bind(sourceTypes[i])
		if err != nil {
			return nil, fmt.Errorf("partition field %q: %w", f.Name, err)
		}
		funcs[i] = fn
	}

	codec, err := newKeyCodec()
	if err != nil {
		return nil, err
	}

	return &Splitter{
		projector:     projector,
		fields:        slices.Clone(spec.Fields),
		funcs:         funcs,
		partitionType: partitionType,
		codec:         codec,
		mem:           memory.DefaultAllocator,
	}, nil
}

// PartitionType returns the struct type of the values KeyToValue produces.
func (s *Splitter) PartitionType() *arrow.StructType {
	return s.partitionType
}

// Split groups the rows of batch by partition key. Each returned batch keeps
// every column of the input, including columns the spec does not reference,
// and holds that key's rows in input order. The caller must Release every
// returned batch. On error nothing is returned.
func (s *Splitter) Split(batch arrow.Record) (map[Key]arrow.Record, error) {
	if batch == nil {
		return nil, errors.New("partition: batch cannot be nil")
	}

	numRows := int(batch.NumRows())
	if numRows == 0 {
		return map[Key]arrow.Record{}, nil
	}

	cols, err := s.projector.Project(batch)
	if err != nil {
		return nil, err
	}

	rowsByKey := make(map[Key][]int)
	values := make([]any, len(s.funcs))
	for row := range numRows {
		for i, col := range cols {
			src, err := col.Value(row)
			if err != nil {
				return nil, fmt.Errorf("row %d, partition field %q: %w", row, s.fields[i].Name, err)
			}
			values[i], err = s.funcs[i](src)
			if err != nil {
				return nil, fmt.Errorf("row %d, partition field %q: %w", row, s.fields[i].Name, err)
			}
		}
		key, err := s.codec.encode(values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		rowsByKey[key] = append(rowsByKey[key], row)
	}

	out := make(map[Key]arrow.Record, len(rowsByKey))
	for key, rows := range rowsByKey {
		sub, err := takeRows(batch, rows, s.mem)
		if err != nil {
			for _, b := range out {
				b.Release()
			}
			return nil, fmt.Errorf("build partition batch: %w", err)
		}
		out[key] = sub
	}
	return out, nil
}

// KeyToValue converts a key produced by Split into its typed partition value.
func (s *Splitter) KeyToValue(key Key) (*Value, error) {
	values, err := s.codec.decode(key, s.partitionType)
	if err != nil {
		return nil, err
	}
	return &Value{Type: s.partitionType, Values: values}, nil
}

type rowRun struct {
	start, end int64
}

// takeRows builds a batch with the full schema of batch restricted to rows,
// which must be ascending. Contiguous runs become zero-copy slices and runs
// are concatenated per column.
func takeRows(batch arrow.Record, rows []int, mem memory.Allocator) (arrow.Record, error) {
	runs := make([]rowRun, 0, 1)
	for _, r := range rows {
		last := len(runs) - 1
		if last >= 0 && runs[last].end == int64(r) {
			runs[last].end++
			continue
		}
		runs = append(runs, rowRun{start: int64(r), end: int64(r) + 1})
	}

	if len(runs) == 1 {
		return batch.NewSlice(runs[0].start, runs[0].end), nil
	}

	numCols := int(batch.NumCols())
	cols := make([]arrow.Array, 0, numCols)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	pieces := make([]arrow.Array, len(runs))
	for c := range numCols {
		col := batch.Column(c)
		for i, run := range runs {
			pieces[i] = array.NewSlice(col, run.start, run.end)
		}
		merged, err := array.Concatenate(pieces, mem)
		for _, p := range pieces {
			p.Release()
		}
		if err != nil {
			return nil, fmt.Errorf("concatenate column %q: %w", batch.ColumnName(c), err)
		}
		cols = append(cols, merged)
	}

	return array.NewRecord(batch.Schema(), cols, int64(len(rows))), nil
}
