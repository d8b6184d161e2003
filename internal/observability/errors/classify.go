// Package errors maps errors onto the short class names used as metric tags
// and in failure notifications.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/poll"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// Known classes. Anything else is named after its innermost concrete type.
const (
	ClassImportInProgress = "import_in_progress"
	ClassQualtricsClient  = "qualtrics_client"
	ClassQualtricsServer  = "qualtrics_server"
	ClassQualtricsDecode  = "qualtrics_decode"
	ClassMissingRef       = "missing_ref"
	ClassPollTimeout      = "poll_timeout"
	ClassCanceled         = "canceled"
	ClassDeadline         = "deadline_exceeded"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var (
		clientErr *qualtrics.ClientError
		serverErr *qualtrics.ServerError
		decodeErr *qualtrics.DecodeError
	)
	switch {
	case goerrors.Is(err, pipeline.ErrImportInProgress):
		return ClassImportInProgress
	case goerrors.Is(err, pipeline.ErrMissingRef):
		return ClassMissingRef
	case goerrors.Is(err, poll.ErrTimeout):
		return ClassPollTimeout
	case goerrors.As(err, &clientErr):
		return ClassQualtricsClient
	case goerrors.As(err, &serverErr):
		return ClassQualtricsServer
	case goerrors.As(err, &decodeErr):
		return ClassQualtricsDecode
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassDeadline
	}

	return typeName(err)
}

// typeName unwraps to the innermost error and converts its type to snake_case-ish.
func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
