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
	"encoding/base64"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// Value is the typed partition tuple attached to written files. Values[i]
// holds the literal for Type.Field(i), or nil for a null partition value.
type Value struct {
	Type   *arrow.StructType
	Values []any
}

// Len returns the number of partition fields.
func (v *Value) Len() int {
	return len(v.Values)
}

// Field returns the struct field and literal at position i.
func (v *Value) Field(i int) (arrow.Field, any) {
	return v.Type.Field(i), v.Values[i]
}

// Get returns the literal for the named partition field.
func (v *Value) Get(name string) (any, bool) {
	idx, ok := v.Type.FieldIdx(name)
	if !ok {
		return nil, false
	}
	return v.Values[idx], true
}

// Clone returns a copy that shares no literal storage with v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	values := make([]any, len(v.Values))
	for i, lit := range v.Values {
		if b, ok := lit.([]byte); ok {
			lit = slices.Clone(b)
		}
		values[i] = lit
	}
	return &Value{Type: v.Type, Values: values}
}

// Equal reports whether both values have the same type and literals.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	return arrow.TypeEqual(v.Type, other.Type) && reflect.DeepEqual(v.Values, other.Values)
}

// Path renders the value as a hive-style path, "name=value/name=value".
func (v *Value) Path() string {
	var sb strings.Builder
	for i := range v.Values {
		field, lit := v.Field(i)
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(url.QueryEscape(field.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(humanString(lit)))
	}
	return sb.String()
}

func (v *Value) String() string {
	return v.Path()
}

func humanString(lit any) string {
	switch val := lit.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case arrow.Date32:
		return val.ToTime().Format(time.DateOnly)
	case arrow.Timestamp:
		return strconv.FormatInt(int64(val), 10)
	}
	return ""
}
