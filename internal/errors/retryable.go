package errors

import (
	"context"
	stderrors "errors"
)

// IsRetryable reports whether an operation failing with err may succeed on a later attempt.
// Caller input problems, missing resources and cancellations are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if se, ok := AsStandard(err); ok {
		switch se.ErrorInfo.Code {
		case ErrorCodeBackendUnavailable, ErrorCodeTimeout, ErrorCodeInternalError:
			return true
		default:
			return false
		}
	}
	return true
}
