package nbt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// writer builds a big-endian tag stream.
type writer struct {
	buf []byte
}

func (w *writer) writeC(v byte) { w.buf = append(w.buf, v) }

func (w *writer) writeH(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) writeD(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) writeQ(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *writer) writeS(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("nbt: string too long (%d bytes)", len(s))
	}
	w.writeH(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *writer) payload(v any) error {
	switch x := v.(type) {
	case int8:
		w.writeC(byte(x))
	case bool:
		if x {
			w.writeC(1)
		} else {
			w.writeC(0)
		}
	case int16:
		w.writeH(uint16(x))
	case int32:
		w.writeD(uint32(x))
	case int64:
		w.writeQ(uint64(x))
	case float32:
		w.writeD(math.Float32bits(x))
	case float64:
		w.writeQ(math.Float64bits(x))
	case []byte:
		w.writeD(uint32(len(x)))
		w.buf = append(w.buf, x...)
	case string:
		return w.writeS(x)
	case List:
		elem := x.Elem
		if len(x.Items) == 0 {
			elem = TagEnd
		}
		w.writeC(byte(elem))
		w.writeD(uint32(len(x.Items)))
		for i, it := range x.Items {
			if t, ok := tagOf(it); !ok || t != x.Elem {
				return fmt.Errorf("nbt: list item %d is %T, list holds %s", i, it, x.Elem)
			}
			if err := w.payload(it); err != nil {
				return err
			}
		}
	case Compound:
		for name, val := range x {
			t, ok := tagOf(val)
			if !ok {
				return fmt.Errorf("nbt: unsupported value %T at %q", val, name)
			}
			w.writeC(byte(t))
			if err := w.writeS(name); err != nil {
				return err
			}
			if err := w.payload(val); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		w.writeC(byte(TagEnd))
	case []int32:
		w.writeD(uint32(len(x)))
		for _, n := range x {
			w.writeD(uint32(n))
		}
	case []int64:
		w.writeD(uint32(len(x)))
		for _, n := range x {
			w.writeQ(uint64(n))
		}
	default:
		return fmt.Errorf("nbt: unsupported value %T", v)
	}
	return nil
}

// EncodeBytes encodes root as a named root compound.
func EncodeBytes(name string, root Compound) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 256)}
	w.writeC(byte(TagCompound))
	if err := w.writeS(name); err != nil {
		return nil, err
	}
	if err := w.payload(root); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Encode writes root as a named root compound to dst.
func Encode(dst io.Writer, name string, root Compound) error {
	b, err := EncodeBytes(name, root)
	if err != nil {
		return err
	}
	_, err = dst.Write(b)
	return err
}
