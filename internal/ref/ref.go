package ref

import (
	"fmt"
	"strings"

	"github.com/koskimas/strata/pkg/trait"
)

// Segment is one step of a path. Object array elements are addressed by
// identity, `items[x]`, never by position.
type Segment struct {
	Trait string
	ID    string
	HasID bool
}

type Path []Segment

// PathError is returned for paths that cannot be parsed or that address an
// element the wrong way.
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf(`invalid path "%s": %s`, e.Path, e.Message)
}

// Parse parses paths like `inner.foo` or `items[x].title`. Identities inside
// brackets may contain dots.
func Parse(ref string) (Path, error) {
	if len(ref) == 0 {
		return nil, &PathError{Path: ref, Message: "empty path"}
	}

	path := make(Path, 0, strings.Count(ref, ".")+1)
	rest := ref

	for {
		end := strings.IndexAny(rest, ".[")
		if end == -1 {
			end = len(rest)
		}

		seg := Segment{Trait: rest[:end]}
		if len(seg.Trait) == 0 {
			return nil, &PathError{Path: ref, Message: "empty segment"}
		}

		rest = rest[end:]

		if strings.HasPrefix(rest, "[") {
			closing := strings.IndexByte(rest, ']')
			if closing == -1 {
				return nil, &PathError{Path: ref, Message: "unterminated ["}
			}

			seg.ID = rest[1:closing]
			seg.HasID = true
			if len(seg.ID) == 0 {
				return nil, &PathError{Path: ref, Message: "empty identity"}
			}

			rest = rest[closing+1:]
		}

		path = append(path, seg)

		if len(rest) == 0 {
			return path, nil
		}

		if rest[0] != '.' {
			return nil, &PathError{Path: ref, Message: fmt.Sprintf(`unexpected "%c"`, rest[0])}
		}

		rest = rest[1:]
	}
}

func MustParse(ref string) Path {
	p, err := Parse(ref)
	if err != nil {
		panic(err)
	}

	return p
}

// Field returns the path of a single top level trait.
func Field(id string) Path {
	return Path{{Trait: id}}
}

func (p Path) String() string {
	var s strings.Builder

	for i, seg := range p {
		if i > 0 {
			s.WriteByte('.')
		}

		s.WriteString(seg.Trait)

		if seg.HasID {
			s.WriteByte('[')
			s.WriteString(seg.ID)
			s.WriteByte(']')
		}
	}

	return s.String()
}

// Root returns the id of the top level trait the path starts from.
func (p Path) Root() string {
	return p[0].Trait
}

// SchemaPath is a path checked against a group. Traits holds the trait of
// every segment.
type SchemaPath struct {
	Path   Path
	Traits []*trait.Trait
}

// Last returns the trait the path ends at.
func (p *SchemaPath) Last() *trait.Trait {
	return p.Traits[len(p.Traits)-1]
}

// Element reports whether the path ends at an object array element rather
// than at a trait value.
func (p *SchemaPath) Element() bool {
	return p.Path[len(p.Path)-1].HasID
}

// Resolve checks `path` against `group`. Unknown traits are reported as
// *trait.UnknownFieldError.
func Resolve(group *trait.Group, path Path) (*SchemaPath, error) {
	sp := &SchemaPath{
		Path:   path,
		Traits: make([]*trait.Trait, 0, len(path)),
	}

	if err := resolve(group, path, 0, sp); err != nil {
		return nil, err
	}

	return sp, nil
}

// ResolveString parses and resolves `ref` in one go.
func ResolveString(group *trait.Group, ref string) (*SchemaPath, error) {
	path, err := Parse(ref)
	if err != nil {
		return nil, err
	}

	return Resolve(group, path)
}

func resolve(group *trait.Group, path Path, i int, sp *SchemaPath) error {
	seg := path[i]

	t, ok := group.Trait(seg.Trait)
	if !ok {
		return &trait.UnknownFieldError{
			Schema: group.Name(),
			Field:  seg.Trait,
			Path:   path.String(),
		}
	}

	sp.Traits = append(sp.Traits, t)

	if seg.HasID && t.Kind() != trait.KindObjectArray {
		return &PathError{Path: path.String(), Message: fmt.Sprintf(`"%s" is a %s, not an object array`, seg.Trait, t.Kind())}
	}

	if i == len(path)-1 {
		return nil
	}

	switch t.Kind() {
	case trait.KindObject:
		return resolve(t.Type(), path, i+1, sp)
	case trait.KindObjectArray:
		if !seg.HasID {
			return &PathError{Path: path.String(), Message: fmt.Sprintf(`elements of "%s" must be addressed by identity`, seg.Trait)}
		}

		return resolve(t.Type(), path, i+1, sp)
	}

	return &trait.UnknownFieldError{
		Schema: fmt.Sprintf("%s.%s", group.Name(), seg.Trait),
		Field:  path[i+1].Trait,
		Path:   path.String(),
	}
}
