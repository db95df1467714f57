package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(2) + type(1) + length(4).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

// The bridge only carries text and nested records; other type bytes are
// preserved untouched so newer peers can add them.
const (
	TypeString uint8 = 1
	TypeBytes  uint8 = 2
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

// Nested builds a bytes field whose value is itself an encoded field list.
func Nested(id uint16, fields []Field) Field {
	return Field{ID: id, Type: TypeBytes, Value: EncodeFields(fields)}
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = binary.BigEndian.AppendUint16(out, f.ID)
		out = append(out, f.Type)
		out = binary.BigEndian.AppendUint32(out, uint32(len(f.Value)))
		out = append(out, f.Value...)
	}
	return out
}

// DecodeFields splits payload into fields. Values are copied out of payload.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	for off := 0; off < len(payload); {
		rest := payload[off:]
		if len(rest) < HeaderLen {
			return nil, fmt.Errorf("%w at offset %d", ErrShortFieldHeader, off)
		}
		n := binary.BigEndian.Uint32(rest[3:HeaderLen])
		if uint64(len(rest)-HeaderLen) < uint64(n) {
			return nil, fmt.Errorf("%w at offset %d: need %d bytes", ErrShortFieldValue, off, n)
		}
		end := HeaderLen + int(n)
		fields = append(fields, Field{
			ID:    binary.BigEndian.Uint16(rest[0:2]),
			Type:  rest[2],
			Value: append([]byte(nil), rest[HeaderLen:end]...),
		})
		off += end
	}
	return fields, nil
}

// GetField returns the first field with id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetAll returns every field with id in wire order.
func GetAll(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

// GetString returns the value of id, or "" when absent or not a string.
func GetString(fields []Field, id uint16) string {
	f, ok := GetField(fields, id)
	if !ok || f.Type != TypeString {
		return ""
	}
	return string(f.Value)
}
