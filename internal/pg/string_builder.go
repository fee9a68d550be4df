package pg

import "strings"

// stringBuilder builds the outputs of the `String` methods of this package.
// Lines written inside `block` are indented by two spaces per level.
type stringBuilder struct {
	strings.Builder
	depth     int
	lineStart bool
}

// block writes `open`, the lines `fn` writes one level deeper and `close`.
func (s *stringBuilder) block(open, close string, fn func()) {
	s.WriteString(open)
	s.newLine()

	s.depth++
	fn()
	s.depth--

	s.WriteString(close)
}

func (s *stringBuilder) newLine() {
	_ = s.Builder.WriteByte('\n')
	s.lineStart = true
}

func (s *stringBuilder) WriteString(str string) {
	if s.lineStart {
		s.lineStart = false
		_, _ = s.Builder.WriteString(strings.Repeat("  ", s.depth))
	}

	_, _ = s.Builder.WriteString(str)
}
