package match

import "strings"

type SchemaPath struct {
	Path []string
}

func (p *SchemaPath) String() string {
	return strings.Join(p.Path, ".")
}

func (p *SchemaPath) Clone() *SchemaPath {
	clone := &SchemaPath{
		Path: make([]string, len(p.Path)),
	}

	copy(clone.Path, p.Path)
	return clone
}

func (p *SchemaPath) push(s string) {
	p.Path = append(p.Path, s)
}

func (p *SchemaPath) pop() {
	p.Path = p.Path[:len(p.Path)-1]
}
