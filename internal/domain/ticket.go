package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates response urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Priorities lists every priority from most to least urgent.
var Priorities = []TicketPriority{
	TicketPriorityCritical,
	TicketPriorityHigh,
	TicketPriorityMedium,
	TicketPriorityLow,
}

// TicketCategory classifies the reported problem area.
type TicketCategory string

const (
	CategoryCriticalSystem TicketCategory = "critical_system"
	CategoryNetwork        TicketCategory = "network"
	CategoryServer         TicketCategory = "server"
	CategorySecurity       TicketCategory = "security"
	CategoryDatabase       TicketCategory = "database"
	CategoryEmail          TicketCategory = "email"
	CategorySoftware       TicketCategory = "software"
	CategoryHardware       TicketCategory = "hardware"
	CategoryTelephony      TicketCategory = "telephony"
	CategoryPrinter        TicketCategory = "printer"
	CategoryAccount        TicketCategory = "account"
	CategoryTraining       TicketCategory = "training"
	CategoryOther          TicketCategory = "other"
)

// Categories lists the supported categories in display order.
var Categories = []TicketCategory{
	CategoryCriticalSystem,
	CategoryNetwork,
	CategoryServer,
	CategorySecurity,
	CategoryDatabase,
	CategoryEmail,
	CategorySoftware,
	CategoryHardware,
	CategoryTelephony,
	CategoryPrinter,
	CategoryAccount,
	CategoryTraining,
	CategoryOther,
}

// Labels used by the French-speaking front office are accepted as input aliases.
var categoryAliases = map[string]TicketCategory{
	"systeme critique":      CategoryCriticalSystem,
	"système critique":      CategoryCriticalSystem,
	"critical system":       CategoryCriticalSystem,
	"reseau":                CategoryNetwork,
	"réseau":                CategoryNetwork,
	"serveur":               CategoryServer,
	"securite":              CategorySecurity,
	"sécurité":              CategorySecurity,
	"base de donnees":       CategoryDatabase,
	"base de données":       CategoryDatabase,
	"logiciel":              CategorySoftware,
	"materiel informatique": CategoryHardware,
	"matériel informatique": CategoryHardware,
	"materiel":              CategoryHardware,
	"matériel":              CategoryHardware,
	"telephonie":            CategoryTelephony,
	"téléphonie":            CategoryTelephony,
	"imprimante":            CategoryPrinter,
	"compte utilisateur":    CategoryAccount,
	"compte":                CategoryAccount,
	"formation":             CategoryTraining,
	"autre":                 CategoryOther,
}

var priorityAliases = map[string]TicketPriority{
	"basse":    TicketPriorityLow,
	"moyenne":  TicketPriorityMedium,
	"haute":    TicketPriorityHigh,
	"critique": TicketPriorityCritical,
	"urgent":   TicketPriorityCritical,
}

var statusAliases = map[string]TicketStatus{
	"ouvert":   TicketStatusOpen,
	"assigne":  TicketStatusAssigned,
	"assigné":  TicketStatusAssigned,
	"en-cours": TicketStatusInProgress,
	"en_cours": TicketStatusInProgress,
	"resolu":   TicketStatusResolved,
	"résolu":   TicketStatusResolved,
	"ferme":    TicketStatusClosed,
	"fermé":    TicketStatusClosed,
}

// ParseCategory resolves a canonical value or a known label.
func ParseCategory(raw string) (TicketCategory, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range Categories {
		if string(c) == key {
			return c, true
		}
	}
	c, ok := categoryAliases[key]
	return c, ok
}

// ParsePriority resolves a canonical value or a known label.
func ParsePriority(raw string) (TicketPriority, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range Priorities {
		if string(p) == key {
			return p, true
		}
	}
	p, ok := priorityAliases[key]
	return p, ok
}

// ParseStatus resolves a canonical value or a known label.
func ParseStatus(raw string) (TicketStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch TicketStatus(key) {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return TicketStatus(key), true
	}
	s, ok := statusAliases[key]
	return s, ok
}

// IsTerminal reports whether the status no longer accepts content edits.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// IsActive reports whether the ticket still needs work.
func (s TicketStatus) IsActive() bool {
	return s == TicketStatusOpen || s == TicketStatusAssigned || s == TicketStatusInProgress
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	ExternalKey        string
	Title              string
	Description        string
	Category           TicketCategory
	Status             TicketStatus
	Priority           TicketPriority
	PriorityOverridden bool
	Impact             Level
	Urgency            Level
	CreatedBy          string
	AssignedTo         *string
	Comments           []Comment
	Resolution         *Resolution
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
}

// Clone returns a deep copy so callers never share comment slices or pointers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssignedTo != nil {
		assignee := *t.AssignedTo
		cp.AssignedTo = &assignee
	}
	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		cp.ClosedAt = &closed
	}
	if t.Resolution != nil {
		res := *t.Resolution
		cp.Resolution = &res
	}
	cp.Comments = append([]Comment(nil), t.Comments...)
	return &cp
}

// IsAssignedTo reports whether the ticket is currently assigned to userID.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// Level grades impact and urgency.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Rank orders levels for comparisons.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// PriorityCount aggregates tickets per priority.
type PriorityCount struct {
	Priority TicketPriority `json:"priority"`
	Count    int            `json:"count"`
}
