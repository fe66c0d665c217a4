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

// Package partition models table partition specs and routes arrow record
// batches to partitions by evaluating each spec field's transform per row.
package partition

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
)

// FieldIDMetadataKey is the arrow field metadata key carrying the stable
// column identifier. pqarrow writes it through as the parquet field id.
const FieldIDMetadataKey = "PARQUET:field_id"

var (
	ErrSchemaMismatch = errors.New("partition: schema mismatch")
	ErrTransform      = errors.New("partition: transform failed")
	ErrUnknownKey     = errors.New("partition: key was not produced by this splitter")
)

// Field maps one source column through a transform into a partition field.
type Field struct {
	SourceID  int32
	FieldID   int32
	Transform Transform
	Name      string
}

// Spec is an ordered list of partition fields. Field order defines both key
// composition order and partition value field order. A Spec must not be
// modified after it has been handed to a builder.
type Spec struct {
	ID     int32
	Fields []Field
}

// ColumnIDs returns the source column ids in field order.
func (s Spec) ColumnIDs() []int32 {
	ids := make([]int32, len(s.Fields))
	for i, f := range s.Fields {
		ids[i] = f.SourceID
	}
	return ids
}

// IsUnpartitioned reports whether the spec has no fields.
func (s Spec) IsUnpartitioned() bool {
	return len(s.Fields) == 0
}

// PartitionType derives the struct type of partition values for schema.
// Each struct field is named after the partition field, carries the partition
// field id in its metadata and has the transform's result type.
func (s Spec) PartitionType(schema *arrow.Schema) (*arrow.StructType, error) {
	projector, err := NewFieldProjector(schema, s.ColumnIDs())
	if err != nil {
		return nil, err
	}

	sourceTypes := projector.Types()
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		if f.Transform == nil {
			return nil, fmt.Errorf("%w: partition field %q has no transform", ErrTransform, f.Name)
		}
		resultType, err := f.Transform.ResultType(sourceTypes[i])
		if err != nil {
			return nil, fmt.Errorf("partition field %q: %w", f.Name, err)
		}
		fields[i] = arrow.Field{
			Name:     f.Name,
			Type:     resultType,
			Nullable: true,
			Metadata: FieldIDMetadata(f.FieldID),
		}
	}
	return arrow.StructOf(fields...), nil
}

// FieldIDMetadata returns arrow field metadata carrying id.
func FieldIDMetadata(id int32) arrow.Metadata {
	return arrow.NewMetadata([]string{FieldIDMetadataKey}, []string{strconv.FormatInt(int64(id), 10)})
}

// FieldID reads the column id from field metadata.
func FieldID(field arrow.Field) (int32, bool) {
	idx := field.Metadata.FindKey(FieldIDMetadataKey)
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(field.Metadata.Values()[idx], 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(id), true
}
