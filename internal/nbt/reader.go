package nbt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxDepth bounds Compound/List nesting so hostile payloads cannot blow the stack.
const maxDepth = 512

var (
	ErrTruncated = errors.New("nbt: truncated data")
	ErrTooDeep   = errors.New("nbt: nesting too deep")
)

// reader decodes big-endian tag fields from an in-memory payload.
// The first failure sticks; later reads return zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(ErrTruncated)
		return false
	}
	return true
}

func (r *reader) readC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) readH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) readD() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) readQ() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

func (r *reader) readS() string {
	n := int(r.readH())
	if !r.need(n) {
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// readLen reads an int32 element count and checks that n elements of at least
// minSize bytes each can still fit in the payload.
func (r *reader) readLen(minSize int) int {
	n := int32(r.readD())
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail(fmt.Errorf("nbt: negative length %d", n))
		return 0
	}
	if minSize > 0 && int64(n)*int64(minSize) > int64(r.remaining()) {
		r.fail(ErrTruncated)
		return 0
	}
	return int(n)
}

func (r *reader) payload(t TagType, depth int) any {
	if depth > maxDepth {
		r.fail(ErrTooDeep)
		return nil
	}
	switch t {
	case TagByte:
		return int8(r.readC())
	case TagShort:
		return int16(r.readH())
	case TagInt:
		return int32(r.readD())
	case TagLong:
		return int64(r.readQ())
	case TagFloat:
		return math.Float32frombits(r.readD())
	case TagDouble:
		return math.Float64frombits(r.readQ())
	case TagByteArray:
		n := r.readLen(1)
		if !r.need(n) {
			return []byte(nil)
		}
		b := make([]byte, n)
		copy(b, r.data[r.off:r.off+n])
		r.off += n
		return b
	case TagString:
		return r.readS()
	case TagList:
		elem := TagType(r.readC())
		n := r.readLen(minPayload(elem))
		if r.err != nil {
			return List{}
		}
		if elem == TagEnd && n > 0 {
			r.fail(fmt.Errorf("nbt: list of End with %d items", n))
			return List{}
		}
		items := make([]any, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			items = append(items, r.payload(elem, depth+1))
		}
		return List{Elem: elem, Items: items}
	case TagCompound:
		return r.compound(depth + 1)
	case TagIntArray:
		n := r.readLen(4)
		out := make([]int32, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, int32(r.readD()))
		}
		return out
	case TagLongArray:
		n := r.readLen(8)
		out := make([]int64, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, int64(r.readQ()))
		}
		return out
	}
	r.fail(fmt.Errorf("nbt: unknown tag type %d", byte(t)))
	return nil
}

func (r *reader) compound(depth int) Compound {
	c := make(Compound)
	for r.err == nil {
		t := TagType(r.readC())
		if t == TagEnd || r.err != nil {
			break
		}
		name := r.readS()
		v := r.payload(t, depth)
		if r.err == nil {
			c[name] = v
		}
	}
	return c
}

// minPayload is the smallest encoded size of one value of type t.
func minPayload(t TagType) int {
	switch t {
	case TagByte, TagCompound:
		return 1
	case TagShort, TagString:
		return 2
	case TagInt, TagFloat, TagByteArray, TagIntArray, TagLongArray:
		return 4
	case TagLong, TagDouble:
		return 8
	case TagList:
		return 5
	}
	return 0
}

// DecodeBytes decodes a named root compound from data.
func DecodeBytes(data []byte) (Compound, string, error) {
	r := &reader{data: data}
	t := TagType(r.readC())
	if r.err != nil {
		return nil, "", r.err
	}
	if t != TagCompound {
		return nil, "", fmt.Errorf("nbt: root is %s, want Compound", t)
	}
	name := r.readS()
	root := r.compound(1)
	if r.err != nil {
		return nil, "", r.err
	}
	return root, name, nil
}

// Decode reads the whole stream and decodes a named root compound.
func Decode(src io.Reader) (Compound, string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fmt.Errorf("nbt: read: %w", err)
	}
	return DecodeBytes(data)
}
