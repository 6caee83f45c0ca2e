package search

import (
	"errors"
	"fmt"
)

// QueryError reports a problem with user-supplied query text: a syntax
// error, an unsupported field, or a malformed value. The message is
// meant to be shown to the user as-is; callers should catch it and
// re-prompt rather than treat it as a server failure.
type QueryError struct {
	msg string
}

func (e *QueryError) Error() string { return e.msg }

func queryErrorf(format string, args ...any) *QueryError {
	return &QueryError{msg: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err stems from invalid query input.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
