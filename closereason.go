package tomsg

// CloseReason is the terminal status recorded on a Connection when its
// reader loop stops, and the value fanned out to every caller whose
// SendCommand was still pending at that point.
type CloseReason struct {
	EOF bool
	Err error // nil iff EOF is true
}

func closeReasonEOF() CloseReason {
	return CloseReason{EOF: true}
}

func closeReasonErr(err error) CloseReason {
	return CloseReason{Err: err}
}

func (c CloseReason) Error() string {
	if c.EOF {
		return "tomsg: connection closed (EOF)"
	}
	return "tomsg: connection closed: " + c.Err.Error()
}

// Unwrap returns the underlying error (nil for EOF), so errors.As can
// find a *ProtocolError inside a CloseReason.
func (c CloseReason) Unwrap() error {
	return c.Err
}
