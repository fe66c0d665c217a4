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
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	mapset "github.com/deckarep/golang-set/v2"
)

// FieldProjector resolves stable column ids to positions in an arrow schema
// so the matching columns can be pulled out of record batches. Nested struct
// fields are reachable; the path holds one index per nesting level.
type FieldProjector struct {
	columnIDs []int32
	paths     [][]int
	types     []arrow.DataType
}

// NewFieldProjector resolves every id in columnIDs against schema. Ids may
// repeat. Any id that no field carries yields ErrSchemaMismatch.
func NewFieldProjector(schema *arrow.Schema, columnIDs []int32) (*FieldProjector, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: schema cannot be nil", ErrSchemaMismatch)
	}

	found := make(map[int32]resolvedField)
	collectFieldIDs(schema.Fields(), nil, found)

	missing := mapset.NewSet[int32]()
	p := &FieldProjector{
		columnIDs: slices.Clone(columnIDs),
		paths:     make([][]int, len(columnIDs)),
		types:     make([]arrow.DataType, len(columnIDs)),
	}
	for i, id := range columnIDs {
		rf, ok := found[id]
		if !ok {
			missing.Add(id)
			continue
		}
		p.paths[i] = rf.path
		p.types[i] = rf.dataType
	}
	if missing.Cardinality() > 0 {
		ids := missing.ToSlice()
		slices.Sort(ids)
		return nil, fmt.Errorf("%w: column ids %v not found in schema", ErrSchemaMismatch, ids)
	}
	return p, nil
}

type resolvedField struct {
	path     []int
	dataType arrow.DataType
}

// collectFieldIDs walks fields depth first. The first field seen with a given
// id wins.
func collectFieldIDs(fields []arrow.Field, prefix []int, out map[int32]resolvedField) {
	for i, f := range fields {
		path := append(slices.Clone(prefix), i)
		if id, ok := FieldID(f); ok {
			if _, dup := out[id]; !dup {
				out[id] = resolvedField{path: path, dataType: f.Type}
			}
		}
		if st, ok := f.Type.(*arrow.StructType); ok {
			collectFieldIDs(st.Fields(), path, out)
		}
	}
}

// ColumnIDs returns the projected column ids in order.
func (p *FieldProjector) ColumnIDs() []int32 {
	return slices.Clone(p.columnIDs)
}

// Types returns the source type of each projected column, in order.
func (p *FieldProjector) Types() []arrow.DataType {
	return slices.Clone(p.types)
}

// Project pulls the projected columns out of batch. The batch may carry
// extra columns beyond the ones the projector was resolved against, but the
// projected positions must hold the resolved types.
func (p *FieldProjector) Project(batch arrow.Record) ([]ProjectedColumn, error) {
	cols := make([]ProjectedColumn, len(p.paths))
	for i, path := range p.paths {
		if path[0] >= int(batch.NumCols()) {
			return nil, fmt.Errorf("%w: batch has %d columns, column id %d is at position %d",
				ErrSchemaMismatch, batch.NumCols(), p.columnIDs[i], path[0])
		}

		var parents []arrow.Array
		arr := batch.Column(path[0])
		for _, idx := range path[1:] {
			st, ok := arr.(*array.Struct)
			if !ok {
				return nil, fmt.Errorf("%w: column id %d expected a struct parent, got %s",
					ErrSchemaMismatch, p.columnIDs[i], arr.DataType())
			}
			parents = append(parents, st)
			arr = st.Field(idx)
		}
		if !arrow.TypeEqual(arr.DataType(), p.types[i]) {
			return nil, fmt.Errorf("%w: column id %d has type %s, expected %s",
				ErrSchemaMismatch, p.columnIDs[i], arr.DataType(), p.types[i])
		}
		cols[i] = ProjectedColumn{arr: arr, parents: parents}
	}
	return cols, nil
}

// ProjectedColumn reads source literals for one projected column.
type ProjectedColumn struct {
	arr     arrow.Array
	parents []arrow.Array
}

// Value returns the literal at row, or nil when the value or any enclosing
// struct is null.
func (c ProjectedColumn) Value(row int) (any, error) {
	for _, parent := range c.parents {
		if parent.IsNull(row) {
			return nil, nil
		}
	}
	if c.arr.IsNull(row) {
		return nil, nil
	}

	switch a := c.arr.(type) {
	case *array.Boolean:
		return a.Value(row), nil
	case *array.Int32:
		return a.Value(row), nil
	case *array.Int64:
		return a.Value(row), nil
	case *array.Float32:
		return a.Value(row), nil
	case *array.Float64:
		return a.Value(row), nil
	case *array.String:
		return a.Value(row), nil
	case *array.Binary:
		return a.Value(row), nil
	case *array.Date32:
		return a.Value(row), nil
	case *array.Timestamp:
		return a.Value(row), nil
	}
	return nil, fmt.Errorf("%w: unsupported column type %s", ErrTransform, c.arr.DataType())
}
