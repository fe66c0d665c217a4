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

package idgen

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGeneratorMonotonic(t *testing.T) {
	gen := NewULIDGenerator()
	now := time.Now()

	prev := gen.Make(now)
	for range 100 {
		next := gen.Make(now)
		assert.Greater(t, next, prev, "ids within one millisecond must increase")
		prev = next
	}

	id, err := ulid.Parse(prev)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), id.Time())
}

func TestULIDGeneratorConcurrent(t *testing.T) {
	gen := NewULIDGenerator()
	now := time.Now()

	const workers, perWorker = 8, 50
	ids := make([][]string, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				ids[w] = append(ids[w], gen.Make(now))
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, batch := range ids {
		assert.True(t, sort.StringsAreSorted(batch))
		for _, id := range batch {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}
