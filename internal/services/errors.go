package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLocalIO       = errors.New("local io failure")
	ErrNetwork       = errors.New("network failure")
	ErrDeclined      = errors.New("download declined")
	ErrBundleLoad    = errors.New("bundle load failure")
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrLocalIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HasMarker reports whether err already carries one of the sentinel markers.
func HasMarker(err error) bool {
	for _, marker := range []error{ErrLocalIO, ErrNetwork, ErrDeclined, ErrBundleLoad, ErrConfiguration, ErrValidation, ErrNotFound} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Kind maps an error to a short classification label used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrDeclined):
		return "declined"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrBundleLoad):
		return "bundle_load"
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "local_io"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
