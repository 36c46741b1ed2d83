package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors collapses the non-nil errors of a multi-step operation into
// one logged entry and one joined error. Steps that succeeded contribute
// nothing; an all-nil slice is a success.
func AggregateErrors(operation string, stepErrs []error, fields ...Field) error {
	failed := make([]error, 0, len(stepErrs))
	messages := make([]string, 0, len(stepErrs))
	for _, err := range stepErrs {
		if err == nil {
			continue
		}
		failed = append(failed, err)
		messages = append(messages, err.Error())
	}
	if len(failed) == 0 {
		return nil
	}
	logFields := append(fields,
		Field{Key: "failed_steps", Value: len(failed)},
		Field{Key: "errors", Value: messages},
	)
	Log().Error(operation+" finished with errors", logFields...)
	return fmt.Errorf("%s: %w", operation, errors.Join(failed...))
}
