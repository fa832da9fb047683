package nbt

// Typed accessors. All return ok=false on a missing key or a type mismatch;
// none of them panic.

// Has reports whether key is present, whatever its type.
func (c Compound) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Compound) Byte(key string) (int8, bool) {
	switch v := c[key].(type) {
	case int8:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Bool treats any non-zero integer tag as true. Missing keys are false.
func (c Compound) Bool(key string) bool {
	n, ok := c.Int(key)
	return ok && n != 0
}

// Int widens Byte and Short tags.
func (c Compound) Int(key string) (int32, bool) {
	switch v := c[key].(type) {
	case int8:
		return int32(v), true
	case int16:
		return int32(v), true
	case int32:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (c Compound) Long(key string) (int64, bool) {
	switch v := c[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	}
	return 0, false
}

func (c Compound) Double(key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

func (c Compound) String(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok
}

func (c Compound) Compound(key string) (Compound, bool) {
	v, ok := c[key].(Compound)
	return v, ok
}

func (c Compound) List(key string) (List, bool) {
	v, ok := c[key].(List)
	return v, ok
}

func (c Compound) IntArray(key string) ([]int32, bool) {
	v, ok := c[key].([]int32)
	return v, ok
}
