package models

import (
	"errors"
	"fmt"
)

// QuotaError signals that the video platform rejected a call because the
// daily API quota is exhausted. It is classified once, at the client
// boundary, so the rest of the pipeline can check errors.As instead of
// re-sniffing message text.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("youtube quota exceeded: %s", e.Message)
}

// IsQuotaExceeded reports whether err wraps a QuotaError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// ParseError signals that an LLM response did not contain the expected JSON
// object. Raw carries the full response text for forensic review.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return e.Reason
}
