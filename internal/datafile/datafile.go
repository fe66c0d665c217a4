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

// Package datafile writes record batches into parquet data files, uploads
// them and describes each one with a DataFile entry.
package datafile

import "github.com/cardinalhq/lakewriter/internal/partition"

// Content identifies what rows a data file holds.
type Content int32

const (
	ContentData Content = iota
	ContentPositionDeletes
	ContentEqualityDeletes
)

func (c Content) String() string {
	switch c {
	case ContentData:
		return "data"
	case ContentPositionDeletes:
		return "position_deletes"
	case ContentEqualityDeletes:
		return "equality_deletes"
	}
	return "unknown"
}

// FileFormatParquet is the only format this package writes.
const FileFormatParquet = "PARQUET"

// DataFile describes one uploaded file. Column keyed maps use the parquet
// field id of each leaf column.
type DataFile struct {
	Content         Content
	FilePath        string
	FileFormat      string
	RecordCount     int64
	FileSizeBytes   int64
	ColumnSizes     map[int32]int64
	ValueCounts     map[int32]int64
	NullValueCounts map[int32]int64

	// Partition is nil until the file is stamped by a partitioned writer.
	Partition *partition.Value
}

// SetPartition records the partition the file's rows belong to.
func (f *DataFile) SetPartition(value *partition.Value) {
	f.Partition = value
}
