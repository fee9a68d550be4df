package match

import (
	"fmt"

	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/pkg/trait"
)

// RemovedKey marks an object array entry in plain data as a removal of its
// identity.
const RemovedKey = "$removed"

// Value checks that `raw` is a valid plain data value for `t` and returns a
// normalised deep copy of it. Numbers become float64, nested objects become
// map[string]any and object arrays become []map[string]any. A nil value is
// valid for every trait. Returns a *MatchError for mismatches and a
// *trait.UnknownFieldError for keys the schema does not define.
func Value(t *trait.Trait, raw any) (any, error) {
	return value(t, raw, &SchemaPath{Path: []string{t.ID()}})
}

// Object checks plain data for a whole object of `group`.
func Object(group *trait.Group, raw map[string]any) (map[string]any, error) {
	return object(group, raw, &SchemaPath{})
}

// Entry checks plain data for one element of the object array `t`.
func Entry(t *trait.Trait, raw any) (map[string]any, error) {
	return entry(t, raw, &SchemaPath{Path: []string{t.ID()}})
}

func value(t *trait.Trait, raw any, path *SchemaPath) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch t.Kind() {
	case trait.KindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case trait.KindNumber:
		if n, ok := trait.ToNumber(raw); ok {
			return n, nil
		}
	case trait.KindBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case trait.KindAny:
		return Copy(raw), nil
	case trait.KindObject:
		m, ok := raw.(map[string]any)
		if !ok {
			break
		}

		return object(t.Type(), m, path)
	case trait.KindObjectArray:
		return entries(t, raw, path)
	}

	return nil, matchErrorf(path, `invalid value %v (%T) for %s trait %s`, raw, raw, t.Kind(), path)
}

func object(group *trait.Group, raw map[string]any, path *SchemaPath) (map[string]any, error) {
	out := make(map[string]any, len(raw))

	for _, id := range maps.SortedKeys(raw) {
		path.push(id)

		t, ok := group.Trait(id)
		if !ok {
			return nil, &trait.UnknownFieldError{
				Schema: group.Name(),
				Field:  id,
				Path:   path.String(),
			}
		}

		v, err := value(t, raw[id], path)
		if err != nil {
			return nil, err
		}

		out[id] = v
		path.pop()
	}

	return out, nil
}

func entries(t *trait.Trait, raw any, path *SchemaPath) ([]map[string]any, error) {
	var list []any

	switch l := raw.(type) {
	case []any:
		list = l
	case []map[string]any:
		list = make([]any, len(l))
		for i := range l {
			list[i] = l[i]
		}
	default:
		return nil, matchErrorf(path, `invalid value %v (%T) for %s trait %s`, raw, raw, t.Kind(), path)
	}

	out := make([]map[string]any, 0, len(list))
	for i, e := range list {
		path.push(fmt.Sprint(i))

		m, err := entry(t, e, path)
		if err != nil {
			return nil, err
		}

		out = append(out, m)
		path.pop()
	}

	return out, nil
}

func entry(t *trait.Trait, raw any, path *SchemaPath) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, matchErrorf(path, `invalid entry %v (%T) for %s`, raw, raw, path)
	}

	removed, hasRemoved := m[RemovedKey]
	if hasRemoved {
		if _, ok := removed.(bool); !ok {
			return nil, matchErrorf(path, `%s of %s must be a boolean`, RemovedKey, path)
		}

		m = withoutKey(m, RemovedKey)
	}

	out, err := object(t.Type(), m, path)
	if err != nil {
		return nil, err
	}

	if hasRemoved {
		out[RemovedKey] = removed
	}

	return out, nil
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))

	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}

	return out
}

// Copy deep copies plain data made of maps, slices and scalars.
func Copy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Copy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Copy(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = Copy(e).(map[string]any)
		}
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	return v
}
