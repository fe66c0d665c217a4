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
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/twmb/murmur3"
)

// Func evaluates a transform bound to one source type. It maps a source
// literal (as produced by ProjectedColumn.Value) to a partition literal.
type Func func(v any) (any, error)

// Transform maps source column values to partition values.
type Transform interface {
	// String returns the canonical transform name, e.g. "bucket[16]".
	String() string

	// ResultType returns the partition value type produced for source.
	ResultType(source arrow.DataType) (arrow.DataType, error)

	// Bind returns the evaluation function for source values of the given type.
	Bind(source arrow.DataType) (Func, error)
}

type (
	Identity struct{}
	Void     struct{}
	Year     struct{}
	Month    struct{}
	Day      struct{}
	Hour     struct{}

	Bucket struct {
		N int32
	}

	Truncate struct {
		W int32
	}
)

var (
	_ Transform = Identity{}
	_ Transform = Void{}
	_ Transform = Bucket{}
	_ Transform = Truncate{}
	_ Transform = Year{}
	_ Transform = Month{}
	_ Transform = Day{}
	_ Transform = Hour{}
)

// ParseTransform parses a canonical transform name.
func ParseTransform(s string) (Transform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "identity":
		return Identity{}, nil
	case "void":
		return Void{}, nil
	case "year":
		return Year{}, nil
	case "month":
		return Month{}, nil
	case "day":
		return Day{}, nil
	case "hour":
		return Hour{}, nil
	}

	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return nil, fmt.Errorf("%w: unknown transform %q", ErrTransform, s)
	}
	arg, err := strconv.ParseInt(name[open+1:len(name)-1], 10, 32)
	if err != nil || arg <= 0 {
		return nil, fmt.Errorf("%w: invalid transform argument in %q", ErrTransform, s)
	}
	switch name[:open] {
	case "bucket":
		return Bucket{N: int32(arg)}, nil
	case "truncate":
		return Truncate{W: int32(arg)}, nil
	}
	return nil, fmt.Errorf("%w: unknown transform %q", ErrTransform, s)
}

func unsupported(t Transform, source arrow.DataType) error {
	return fmt.Errorf("%w: %s does not support source type %s", ErrTransform, t, source)
}

func typeMismatch(t Transform, v any) error {
	return fmt.Errorf("%w: %s got unexpected value type %T", ErrTransform, t, v)
}

func isPrimitiveSource(source arrow.DataType) bool {
	switch source.ID() {
	case arrow.BOOL, arrow.INT32, arrow.INT64, arrow.FLOAT32, arrow.FLOAT64,
		arrow.STRING, arrow.BINARY, arrow.DATE32, arrow.TIMESTAMP:
		return true
	}
	return false
}

func (Identity) String() string { return "identity" }

func (t Identity) ResultType(source arrow.DataType) (arrow.DataType, error) {
	if !isPrimitiveSource(source) {
		return nil, unsupported(t, source)
	}
	return source, nil
}

func (t Identity) Bind(source arrow.DataType) (Func, error) {
	if !isPrimitiveSource(source) {
		return nil, unsupported(t, source)
	}
	return func(v any) (any, error) {
		if v != nil && !isLiteralOf(source, v) {
			return nil, typeMismatch(t, v)
		}
		return v, nil
	}, nil
}

// isLiteralOf reports whether v is the literal ProjectedColumn.Value yields
// for a column of type source.
func isLiteralOf(source arrow.DataType, v any) bool {
	switch v.(type) {
	case bool:
		return source.ID() == arrow.BOOL
	case int32:
		return source.ID() == arrow.INT32
	case int64:
		return source.ID() == arrow.INT64
	case float32:
		return source.ID() == arrow.FLOAT32
	case float64:
		return source.ID() == arrow.FLOAT64
	case string:
		return source.ID() == arrow.STRING
	case []byte:
		return source.ID() == arrow.BINARY
	case arrow.Date32:
		return source.ID() == arrow.DATE32
	case arrow.Timestamp:
		return source.ID() == arrow.TIMESTAMP
	}
	return false
}

// expect asserts v to the literal type a bound Func accepts.
func expect[T any](t Transform, v any) (T, error) {
	val, ok := v.(T)
	if !ok {
		var zero T
		return zero, typeMismatch(t, v)
	}
	return val, nil
}

func (Void) String() string { return "void" }

func (t Void) ResultType(source arrow.DataType) (arrow.DataType, error) {
	if !isPrimitiveSource(source) {
		return nil, unsupported(t, source)
	}
	return source, nil
}

func (t Void) Bind(source arrow.DataType) (Func, error) {
	if !isPrimitiveSource(source) {
		return nil, unsupported(t, source)
	}
	return func(any) (any, error) { return nil, nil }, nil
}

func (t Bucket) String() string { return fmt.Sprintf("bucket[%d]", t.N) }

func (t Bucket) ResultType(source arrow.DataType) (arrow.DataType, error) {
	switch source.ID() {
	case arrow.INT32, arrow.INT64, arrow.DATE32, arrow.TIMESTAMP, arrow.STRING, arrow.BINARY:
		return arrow.PrimitiveTypes.Int32, nil
	}
	return nil, unsupported(t, source)
}

func (t Bucket) Bind(source arrow.DataType) (Func, error) {
	if t.N <= 0 {
		return nil, fmt.Errorf("%w: bucket count must be positive, got %d", ErrTransform, t.N)
	}

	var hash func(v any) (uint32, error)
	switch source.ID() {
	case arrow.INT32:
		hash = func(v any) (uint32, error) {
			val, err := expect[int32](t, v)
			return hashLong(int64(val)), err
		}
	case arrow.INT64:
		hash = func(v any) (uint32, error) {
			val, err := expect[int64](t, v)
			return hashLong(val), err
		}
	case arrow.DATE32:
		hash = func(v any) (uint32, error) {
			val, err := expect[arrow.Date32](t, v)
			return hashLong(int64(val)), err
		}
	case arrow.TIMESTAMP:
		unit := source.(*arrow.TimestampType).Unit
		hash = func(v any) (uint32, error) {
			val, err := expect[arrow.Timestamp](t, v)
			if err != nil {
				return 0, err
			}
			micros, err := toMicros(int64(val), unit)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", t, err)
			}
			return hashLong(micros), nil
		}
	case arrow.STRING:
		hash = func(v any) (uint32, error) {
			val, err := expect[string](t, v)
			return murmur3.Sum32([]byte(val)), err
		}
	case arrow.BINARY:
		hash = func(v any) (uint32, error) {
			val, err := expect[[]byte](t, v)
			return murmur3.Sum32(val), err
		}
	default:
		return nil, unsupported(t, source)
	}

	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		h, err := hash(v)
		if err != nil {
			return nil, err
		}
		return int32((h & math.MaxInt32) % uint32(t.N)), nil
	}, nil
}

// hashLong hashes v as an 8 byte little-endian long.
func hashLong(v int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return murmur3.Sum32(buf[:])
}

func (t Truncate) String() string { return fmt.Sprintf("truncate[%d]", t.W) }

func (t Truncate) ResultType(source arrow.DataType) (arrow.DataType, error) {
	switch source.ID() {
	case arrow.INT32, arrow.INT64, arrow.STRING, arrow.BINARY:
		return source, nil
	}
	return nil, unsupported(t, source)
}

func (t Truncate) Bind(source arrow.DataType) (Func, error) {
	if t.W <= 0 {
		return nil, fmt.Errorf("%w: truncate width must be positive, got %d", ErrTransform, t.W)
	}
	w := int64(t.W)

	var fn Func
	switch source.ID() {
	case arrow.INT32:
		fn = func(v any) (any, error) {
			val, err := expect[int32](t, v)
			if err != nil {
				return nil, err
			}
			out, err := truncateLong(int64(val), w)
			if err != nil {
				return nil, err
			}
			if out < math.MinInt32 {
				return nil, fmt.Errorf("%w: %s overflows int32 for %d", ErrTransform, t, val)
			}
			return int32(out), nil
		}
	case arrow.INT64:
		fn = func(v any) (any, error) {
			val, err := expect[int64](t, v)
			if err != nil {
				return nil, err
			}
			return truncateLong(val, w)
		}
	case arrow.STRING:
		fn = func(v any) (any, error) {
			val, err := expect[string](t, v)
			if err != nil {
				return nil, err
			}
			if utf8.RuneCountInString(val) <= int(w) {
				return val, nil
			}
			n := 0
			for i := range val {
				if n == int(w) {
					return val[:i], nil
				}
				n++
			}
			return val, nil
		}
	case arrow.BINARY:
		fn = func(v any) (any, error) {
			val, err := expect[[]byte](t, v)
			if err != nil {
				return nil, err
			}
			if len(val) <= int(w) {
				return val, nil
			}
			return val[:w], nil
		}
	default:
		return nil, unsupported(t, source)
	}

	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return fn(v)
	}, nil
}

func truncateLong(v, w int64) (int64, error) {
	rem := v % w
	if rem < 0 {
		rem += w
	}
	if v < math.MinInt64+rem {
		return 0, fmt.Errorf("%w: truncate[%d] overflows for %d", ErrTransform, w, v)
	}
	return v - rem, nil
}

func (Year) String() string  { return "year" }
func (Month) String() string { return "month" }
func (Day) String() string   { return "day" }
func (Hour) String() string  { return "hour" }

func (t Year) ResultType(source arrow.DataType) (arrow.DataType, error) {
	return temporalResult(t, source, false, arrow.PrimitiveTypes.Int32)
}

func (t Month) ResultType(source arrow.DataType) (arrow.DataType, error) {
	return temporalResult(t, source, false, arrow.PrimitiveTypes.Int32)
}

func (t Day) ResultType(source arrow.DataType) (arrow.DataType, error) {
	return temporalResult(t, source, false, arrow.FixedWidthTypes.Date32)
}

func (t Hour) ResultType(source arrow.DataType) (arrow.DataType, error) {
	return temporalResult(t, source, true, arrow.PrimitiveTypes.Int32)
}

func (t Year) Bind(source arrow.DataType) (Func, error) {
	return bindTemporal(t, source, false, func(tm time.Time, _ int64) (any, error) {
		return int32(tm.Year() - 1970), nil
	})
}

func (t Month) Bind(source arrow.DataType) (Func, error) {
	return bindTemporal(t, source, false, func(tm time.Time, _ int64) (any, error) {
		return int32((tm.Year()-1970)*12 + int(tm.Month()) - 1), nil
	})
}

func (t Day) Bind(source arrow.DataType) (Func, error) {
	return bindTemporal(t, source, false, func(_ time.Time, micros int64) (any, error) {
		return arrow.Date32(floorDiv(micros, microsPerDay)), nil
	})
}

func (t Hour) Bind(source arrow.DataType) (Func, error) {
	return bindTemporal(t, source, true, func(_ time.Time, micros int64) (any, error) {
		hours := floorDiv(micros, microsPerHour)
		if hours > math.MaxInt32 || hours < math.MinInt32 {
			return nil, fmt.Errorf("%w: hour %d overflows int32", ErrTransform, hours)
		}
		return int32(hours), nil
	})
}

const (
	microsPerHour = int64(time.Hour / time.Microsecond)
	microsPerDay  = 24 * microsPerHour
)

func temporalResult(t Transform, source arrow.DataType, timestampOnly bool, result arrow.DataType) (arrow.DataType, error) {
	switch source.ID() {
	case arrow.TIMESTAMP:
		return result, nil
	case arrow.DATE32:
		if !timestampOnly {
			return result, nil
		}
	}
	return nil, unsupported(t, source)
}

func bindTemporal(t Transform, source arrow.DataType, timestampOnly bool, fn func(tm time.Time, micros int64) (any, error)) (Func, error) {
	if _, err := temporalResult(t, source, timestampOnly, arrow.PrimitiveTypes.Int32); err != nil {
		return nil, err
	}

	var micros func(v any) (int64, error)
	if ts, ok := source.(*arrow.TimestampType); ok {
		micros = func(v any) (int64, error) {
			val, err := expect[arrow.Timestamp](t, v)
			if err != nil {
				return 0, err
			}
			return toMicros(int64(val), ts.Unit)
		}
	} else {
		micros = func(v any) (int64, error) {
			val, err := expect[arrow.Date32](t, v)
			if err != nil {
				return 0, err
			}
			return scaleMicros(int64(val), microsPerDay)
		}
	}

	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		m, err := micros(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return fn(time.UnixMicro(m).UTC(), m)
	}, nil
}

func toMicros(v int64, unit arrow.TimeUnit) (int64, error) {
	switch unit {
	case arrow.Second:
		return scaleMicros(v, 1_000_000)
	case arrow.Millisecond:
		return scaleMicros(v, 1_000)
	case arrow.Nanosecond:
		return floorDiv(v, 1_000), nil
	default:
		return v, nil
	}
}

// scaleMicros returns v*factor, failing when the product leaves int64.
func scaleMicros(v, factor int64) (int64, error) {
	if v > math.MaxInt64/factor || v < math.MinInt64/factor {
		return 0, fmt.Errorf("%w: %d overflows int64 microseconds at scale %d", ErrTransform, v, factor)
	}
	return v * factor, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
