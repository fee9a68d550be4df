package trait

type Kind string

const (
	KindString      Kind = "string"
	KindNumber      Kind = "number"
	KindBool        Kind = "boolean"
	KindAny         Kind = "any"
	KindObject      Kind = "object"
	KindObjectArray Kind = "objectArray"
)

// Primitive reports whether values of the kind are resolved by plain override
// without looking inside them. `any` counts as primitive.
func (k Kind) Primitive() bool {
	switch k {
	case KindString, KindNumber, KindBool, KindAny:
		return true
	}

	return false
}

// Nested reports whether the kind holds values of a nested group.
func (k Kind) Nested() bool {
	return k == KindObject || k == KindObjectArray
}

func (k Kind) Valid() bool {
	return k.Primitive() || k.Nested()
}

// ToNumber converts any Go integer or float to float64, which is the
// representation of every `number` value.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return 0, false
}
