package qa

import "github.com/pkg/errors"

// SubmissionError is the structured error shape the upstream LMS service
// returns on a rejected request: either {data:{message}} or {message}.
type SubmissionError struct {
	Message string `json:"message,omitempty"`
	Data    struct {
		Message string `json:"message,omitempty"`
	} `json:"data,omitempty"`
	Status int `json:"-"`
}

func (e *SubmissionError) Error() string {
	if e.Data.Message != "" {
		return e.Data.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return "upstream request rejected"
}

// ErrorMessage extracts a user-facing message from an upstream error: the
// nested data.message first, the top-level message next, the fallback last.
func ErrorMessage(err error, fallback string) string {
	if serr, ok := errors.Cause(err).(*SubmissionError); ok {
		if serr.Data.Message != "" {
			return serr.Data.Message
		}
		if serr.Message != "" {
			return serr.Message
		}
	}
	return fallback
}
