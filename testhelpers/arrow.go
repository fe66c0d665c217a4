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

// Package testhelpers builds arrow schemas and record batches for tests.
package testhelpers

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/lakewriter/internal/partition"
)

// Int32Schema returns a schema of numCols nullable int32 columns named
// col1..colN with column ids 1..N.
func Int32Schema(numCols int) *arrow.Schema {
	fields := make([]arrow.Field, numCols)
	for i := range numCols {
		fields[i] = arrow.Field{
			Name:     fmt.Sprintf("col%d", i+1),
			Type:     arrow.PrimitiveTypes.Int32,
			Nullable: true,
			Metadata: partition.FieldIDMetadata(int32(i + 1)),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Int32Batch builds a record batch over an all-int32 schema, one slice per
// column. The caller releases the batch; tests usually defer it.
func Int32Batch(t testing.TB, schema *arrow.Schema, columns [][]int32) arrow.Record {
	t.Helper()
	require.Equal(t, schema.NumFields(), len(columns), "one value slice per schema field")

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()

	for i, values := range columns {
		b, ok := bldr.Field(i).(*array.Int32Builder)
		require.True(t, ok, "field %d is not int32", i)
		b.AppendValues(values, nil)
	}
	return bldr.NewRecord()
}

// Int32Columns reads every column of an all-int32 batch back into slices.
func Int32Columns(t testing.TB, batch arrow.Record) [][]int32 {
	t.Helper()
	out := make([][]int32, batch.NumCols())
	for i := range out {
		col, ok := batch.Column(i).(*array.Int32)
		require.True(t, ok, "column %d is not int32", i)
		out[i] = append([]int32(nil), col.Int32Values()...)
	}
	return out
}
