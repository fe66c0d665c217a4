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

package datafile

import (
	"fmt"

	"github.com/apache/arrow-go/v18/parquet/file"
)

type fileStats struct {
	rows        int64
	columnSizes map[int32]int64
	valueCounts map[int32]int64
	nullCounts  map[int32]int64
}

// readFileStats sums per column chunk metadata across row groups. Columns
// without a field id are skipped.
func readFileStats(path string) (*fileStats, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer func() { _ = pf.Close() }()

	md := pf.MetaData()
	stats := &fileStats{
		rows:        pf.NumRows(),
		columnSizes: make(map[int32]int64),
		valueCounts: make(map[int32]int64),
		nullCounts:  make(map[int32]int64),
	}

	for rgIdx := range md.NumRowGroups() {
		rg := md.RowGroup(rgIdx)
		for colIdx := range md.Schema.NumColumns() {
			fieldID := md.Schema.Column(colIdx).SchemaNode().FieldID()
			if fieldID < 0 {
				continue
			}
			chunk, err := rg.ColumnChunk(colIdx)
			if err != nil {
				return nil, fmt.Errorf("row group %d column %d: %w", rgIdx, colIdx, err)
			}
			stats.columnSizes[fieldID] += chunk.TotalCompressedSize()
			stats.valueCounts[fieldID] += chunk.NumValues()

			set, err := chunk.StatsSet()
			if err != nil || !set {
				continue
			}
			colStats, err := chunk.Statistics()
			if err != nil {
				return nil, fmt.Errorf("row group %d column %d statistics: %w", rgIdx, colIdx, err)
			}
			if colStats != nil && colStats.HasNullCount() {
				stats.nullCounts[fieldID] += colStats.NullCount()
			}
		}
	}
	return stats, nil
}
