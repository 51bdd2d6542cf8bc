package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/helpdeskhq/support-desk/internal/domain"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// ResolutionInput is the caller-supplied part of a resolution record. TimeSpentMinutes is
// kept as text so form values and JSON numbers are validated the same way; empty means 0.
type ResolutionInput struct {
	SolutionDescription string
	Type                string
	RootCause           string
	StepsTaken          string
	TimeSpentMinutes    string
	ExpectedVersion     int
}

// BuildResolution validates input and stamps the record with resolvedBy and now. The
// resolution time is never taken from the caller.
func BuildResolution(input ResolutionInput, resolvedBy string, now time.Time) (*domain.Resolution, error) {
	details := map[string]any{}

	solution := strings.TrimSpace(input.SolutionDescription)
	if solution == "" {
		details["solution_description"] = "required"
	}

	kind := domain.ResolutionRepair
	if raw := strings.TrimSpace(input.Type); raw != "" {
		parsed, ok := domain.ParseResolutionType(raw)
		if !ok {
			details["resolution_type"] = "unknown"
		}
		kind = parsed
	}

	minutes := 0
	if raw := strings.TrimSpace(input.TimeSpentMinutes); raw != "" {
		parsed, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			details["time_spent_minutes"] = "must be an integer"
		case parsed < 0:
			details["time_spent_minutes"] = "must not be negative"
		default:
			minutes = parsed
		}
	}

	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid resolution", details)
	}

	return &domain.Resolution{
		SolutionDescription: solution,
		Type:                kind,
		RootCause:           strings.TrimSpace(input.RootCause),
		StepsTaken:          strings.TrimSpace(input.StepsTaken),
		TimeSpentMinutes:    minutes,
		ResolvedBy:          resolvedBy,
		ResolvedAt:          now,
	}, nil
}
