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
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/fxamacker/cbor/v2"
)

// Key is the routing token for one partition: the deterministic encoding of
// every transformed field value in spec field order. Keys are comparable and
// equal exactly when all transformed values are equal.
type Key string

// keyCodec encodes partition literals into keys and back. Encoding is
// deterministic so equal literal tuples always produce byte-identical keys.
type keyCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func newKeyCodec() (*keyCodec, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
		TimeTag:       cbor.EncTagNone,
		// An empty binary value must not encode like a null.
		NilContainers: cbor.NilContainerAsEmpty,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create key encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
		UTF8:   cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create key decoder: %w", err)
	}

	return &keyCodec{encMode: encMode, decMode: decMode}, nil
}

func (c *keyCodec) encode(values []any) (Key, error) {
	b, err := c.encMode.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("%w: encode partition key: %v", ErrTransform, err)
	}
	return Key(b), nil
}

// decode turns key back into literals typed by partitionType.
func (c *keyCodec) decode(key Key, partitionType *arrow.StructType) ([]any, error) {
	var raw []any
	if err := c.decMode.Unmarshal([]byte(key), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKey, err)
	}
	if len(raw) != partitionType.NumFields() {
		return nil, fmt.Errorf("%w: key has %d fields, partition type has %d",
			ErrUnknownKey, len(raw), partitionType.NumFields())
	}

	values := make([]any, len(raw))
	for i, v := range raw {
		typed, err := coerceLiteral(v, partitionType.Field(i).Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrUnknownKey, partitionType.Field(i).Name, err)
		}
		values[i] = typed
	}
	return values, nil
}

// coerceLiteral restores the Go literal type for dt from a decoded value.
// The encoding widens every integer to int64 and every float to float64.
func coerceLiteral(v any, dt arrow.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dt.ID() {
	case arrow.BOOL:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case arrow.INT32:
		if n, ok := v.(int64); ok {
			return int32(n), nil
		}
	case arrow.INT64:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case arrow.DATE32:
		if n, ok := v.(int64); ok {
			return arrow.Date32(n), nil
		}
	case arrow.TIMESTAMP:
		if n, ok := v.(int64); ok {
			return arrow.Timestamp(n), nil
		}
	case arrow.FLOAT32:
		switch f := v.(type) {
		case float64:
			return float32(f), nil
		case float32:
			return f, nil
		}
	case arrow.FLOAT64:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case arrow.STRING:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case arrow.BINARY:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot represent %s as %s", reflect.TypeOf(v), dt)
}
