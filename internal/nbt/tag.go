// Package nbt implements the typed key/value tree format used for every
// persisted game object: chunk payloads, entity snapshots and player data.
//
// Values decoded into a Compound use fixed Go types per tag:
//
//	Byte      int8        Short     int16       Int       int32
//	Long      int64       Float     float32     Double    float64
//	ByteArray []byte      String    string      List      List
//	Compound  Compound    IntArray  []int32     LongArray []int64
package nbt

import "fmt"

// TagType is the on-disk tag id.
type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var tagNames = [...]string{
	"End", "Byte", "Short", "Int", "Long", "Float", "Double",
	"ByteArray", "String", "List", "Compound", "IntArray", "LongArray",
}

func (t TagType) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", byte(t))
}

// Compound is a named-tag map. Key order is not preserved.
type Compound map[string]any

// List is a homogeneous tag list. Elem is TagEnd only for empty lists.
type List struct {
	Elem  TagType
	Items []any
}

// Len returns the number of items.
func (l List) Len() int { return len(l.Items) }

// Compounds returns the compound items of the list, skipping anything else.
func (l List) Compounds() []Compound {
	if l.Elem != TagCompound {
		return nil
	}
	out := make([]Compound, 0, len(l.Items))
	for _, it := range l.Items {
		if c, ok := it.(Compound); ok {
			out = append(out, c)
		}
	}
	return out
}

// Doubles returns the list as float64s. Float lists are widened.
func (l List) Doubles() ([]float64, bool) {
	out := make([]float64, 0, len(l.Items))
	for _, it := range l.Items {
		switch v := it.(type) {
		case float64:
			out = append(out, v)
		case float32:
			out = append(out, float64(v))
		default:
			return nil, false
		}
	}
	return out, true
}

// Doubles builds a Double list, the shape used for entity positions.
func Doubles(v ...float64) List {
	items := make([]any, len(v))
	for i, f := range v {
		items[i] = f
	}
	return List{Elem: TagDouble, Items: items}
}

// Compounds builds a Compound list.
func Compounds(v ...Compound) List {
	items := make([]any, len(v))
	for i, c := range v {
		items[i] = c
	}
	return List{Elem: TagCompound, Items: items}
}

// tagOf maps a Go value to its tag id. ok=false for unsupported types.
func tagOf(v any) (TagType, bool) {
	switch v.(type) {
	case int8:
		return TagByte, true
	case bool:
		return TagByte, true
	case int16:
		return TagShort, true
	case int32:
		return TagInt, true
	case int64:
		return TagLong, true
	case float32:
		return TagFloat, true
	case float64:
		return TagDouble, true
	case []byte:
		return TagByteArray, true
	case string:
		return TagString, true
	case List:
		return TagList, true
	case Compound:
		return TagCompound, true
	case []int32:
		return TagIntArray, true
	case []int64:
		return TagLongArray, true
	}
	return TagEnd, false
}
