package tomsg

import "strings"

// Line is a string guaranteed to contain no newline (0x0A). It's used for
// message bodies, error strings, and passwords.
type Line string

// NewLine validates s and returns it as a Line, or ErrInvalidLine if s
// contains a newline.
func NewLine(s string) (Line, error) {
	if strings.Contains(s, "\n") {
		return "", ErrInvalidLine
	}
	return Line(s), nil
}

// lineUnchecked builds a Line from text known to already satisfy the
// invariant, such as a joined tail of already-split wire tokens.
func lineUnchecked(s string) Line {
	return Line(s)
}

func (l Line) String() string {
	return string(l)
}
