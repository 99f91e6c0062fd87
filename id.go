package tomsg

import "strconv"

// ID is a non-negative 64-bit integer identifying a message. On the wire,
// the value -1 stands for "no id" and is represented in Go as a nil *ID
// where the protocol calls for "reply_on | -1"; NewID itself rejects
// negative values outright.
type ID int64

// NewID validates v and returns it as an ID, or ErrNegativeID if v is
// negative.
func NewID(v int64) (ID, error) {
	if v < 0 {
		return 0, ErrNegativeID
	}
	return ID(v), nil
}

// idUnchecked builds an ID from a value without checking its sign, such
// as one just parsed off the wire; the caller vouches for the value.
func idUnchecked(v int64) ID {
	return ID(v)
}

func (id ID) Int64() int64 {
	return int64(id)
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// encodeReplyOn renders an optional ID the way the wire grammar wants it:
// -1 for "none", the decimal value otherwise.
func encodeReplyOn(replyOn *ID) string {
	if replyOn == nil {
		return "-1"
	}
	return replyOn.String()
}
