package tomsg

import "strings"

// Word is a string guaranteed to contain no space (0x20) and no newline
// (0x0A). It's used for usernames, room names, tags, and API keys, and is
// cheap to use as a map key since it's just a string underneath.
type Word string

// NewWord validates s and returns it as a Word, or ErrInvalidWord if s
// contains a space or a newline.
func NewWord(s string) (Word, error) {
	if strings.ContainsAny(s, " \n") {
		return "", ErrInvalidWord
	}
	return Word(s), nil
}

// wordUnchecked builds a Word from a token known to already satisfy the
// invariant, such as one produced by splitting a wire line on single
// spaces. Callers outside this package should prefer NewWord.
func wordUnchecked(s string) Word {
	return Word(s)
}

func (w Word) String() string {
	return string(w)
}
