package delivery

import (
	"fmt"
	"net/http"
)

// Classify maps one dispatch outcome to its Result. It is a pure function of
// (statusCode, err): transport errors and HTTP 429/5xx are retryable, every
// other non-2xx status is terminal.
func Classify(statusCode int, err error) Result {
	if err != nil {
		return Failure{
			Message:    err.Error(),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	if statusCode >= 200 && statusCode < 300 {
		return Success{StatusCode: statusCode}
	}
	retryable := statusCode == http.StatusTooManyRequests ||
		(statusCode >= 500 && statusCode <= 599)
	return Failure{
		Message:    fmt.Sprintf("HTTP %d", statusCode),
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}
