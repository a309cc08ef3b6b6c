package accounts

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// parseTransitionTime reads RFC 3339 timestamps from state change payloads.
func parseTransitionTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid timestamp, expected RFC 3339").
			WithCode(goerrors.CodeBadRequest)
	}
	return t, nil
}
