package dto

import (
	"encoding/json"
	"time"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

// CreateTicketRequest payload. Category and Priority accept canonical values or labels.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// PreviewPriorityRequest payload.
type PreviewPriorityRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// UpdateTicketRequest payload. Absent fields are left untouched. AssignedTo is kept raw so
// an explicit null can be told apart from a missing key.
type UpdateTicketRequest struct {
	Title           *string         `json:"title"`
	Description     *string         `json:"description"`
	Category        *string         `json:"category"`
	Priority        *string         `json:"priority"`
	Status          *string         `json:"status"`
	AssignedTo      json.RawMessage `json:"assigned_to"`
	ExpectedVersion int             `json:"expected_version"`
}

// ResolveTicketRequest payload. TimeSpentMinutes accepts a JSON number or a numeric string.
type ResolveTicketRequest struct {
	SolutionDescription string          `json:"solution_description"`
	ResolutionType      string          `json:"resolution_type"`
	RootCause           string          `json:"root_cause"`
	StepsTaken          string          `json:"steps_taken"`
	TimeSpentMinutes    json.RawMessage `json:"time_spent_minutes"`
	ExpectedVersion     int             `json:"expected_version"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                 string                `json:"id"`
	ExternalKey        string                `json:"external_key"`
	Title              string                `json:"title"`
	Category           domain.TicketCategory `json:"category"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	PriorityOverridden bool                  `json:"priority_overridden"`
	CreatedBy          string                `json:"created_by"`
	AssignedTo         *string               `json:"assigned_to"`
	Version            int                   `json:"version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string              `json:"description"`
	Impact      domain.Level        `json:"impact"`
	Urgency     domain.Level        `json:"urgency"`
	ClosedAt    *time.Time          `json:"closed_at"`
	Resolution  *ResolutionResponse `json:"resolution"`
	Comments    []CommentResponse   `json:"comments"`
}

// ResolutionResponse describes how a ticket was fixed.
type ResolutionResponse struct {
	SolutionDescription string                `json:"solution_description"`
	Type                domain.ResolutionType `json:"resolution_type"`
	RootCause           string                `json:"root_cause,omitempty"`
	StepsTaken          string                `json:"steps_taken,omitempty"`
	TimeSpentMinutes    int                   `json:"time_spent_minutes"`
	ResolvedBy          string                `json:"resolved_by"`
	ResolvedAt          time.Time             `json:"resolved_at"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangedByID string                  `json:"changed_by_id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// PriorityPreviewResponse is the classifier output.
type PriorityPreviewResponse struct {
	Priority        domain.TicketPriority `json:"priority"`
	Impact          domain.Level          `json:"impact"`
	Urgency         domain.Level          `json:"urgency"`
	MatchedKeywords []string              `json:"matched_keywords"`
}
