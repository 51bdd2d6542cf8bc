package domain

import (
	"strings"
	"time"
)

// ResolutionType describes how a ticket was fixed.
type ResolutionType string

const (
	ResolutionRepair        ResolutionType = "repair"
	ResolutionConfiguration ResolutionType = "configuration"
	ResolutionReplacement   ResolutionType = "replacement"
	ResolutionTraining      ResolutionType = "training"
	ResolutionWorkaround    ResolutionType = "workaround"
)

var resolutionTypeAliases = map[string]ResolutionType{
	"reparation":    ResolutionRepair,
	"réparation":    ResolutionRepair,
	"remplacement":  ResolutionReplacement,
	"formation":     ResolutionTraining,
	"contournement": ResolutionWorkaround,
}

// ParseResolutionType resolves a canonical value or a known label.
func ParseResolutionType(raw string) (ResolutionType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch ResolutionType(key) {
	case ResolutionRepair, ResolutionConfiguration, ResolutionReplacement, ResolutionTraining, ResolutionWorkaround:
		return ResolutionType(key), true
	}
	t, ok := resolutionTypeAliases[key]
	return t, ok
}

// Resolution records how a ticket was resolved. It is written together with the
// transition to resolved and never edited afterwards.
type Resolution struct {
	SolutionDescription string
	Type                ResolutionType
	RootCause           string
	StepsTaken          string
	TimeSpentMinutes    int
	ResolvedBy          string
	ResolvedAt          time.Time
}
