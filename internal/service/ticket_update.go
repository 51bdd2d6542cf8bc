package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/helpdeskhq/support-desk/internal/domain"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// allowedTransitions lists the status moves reachable through a plain update. Resolving
// goes through ResolveTicket so the resolution record is always written with it.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusAssigned, domain.TicketStatusInProgress},
	domain.TicketStatusAssigned:   {domain.TicketStatusOpen, domain.TicketStatusInProgress},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusAssigned},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

// CanTransition reports whether an update may move a ticket from one status to another.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func (in TicketUpdateInput) fields() []Field {
	var fields []Field
	if in.Title != nil {
		fields = append(fields, FieldTitle)
	}
	if in.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if in.Category != nil {
		fields = append(fields, FieldCategory)
	}
	if in.Priority != nil {
		fields = append(fields, FieldPriority)
	}
	if in.Status != nil {
		fields = append(fields, FieldStatus)
	}
	if in.Assignee != nil {
		fields = append(fields, FieldAssignee)
	}
	return fields
}

type updatePlan struct {
	current *domain.Ticket
	next    *domain.Ticket
}

func (p updatePlan) changed() bool {
	a, b := p.current, p.next
	return a.Title != b.Title ||
		a.Description != b.Description ||
		a.Category != b.Category ||
		a.Priority != b.Priority ||
		a.PriorityOverridden != b.PriorityOverridden ||
		a.Status != b.Status ||
		!sameAssignee(a.AssignedTo, b.AssignedTo)
}

// planUpdate validates input against the current ticket and returns the ticket as it would
// look after the update. Nothing is written.
func (s *TicketService) planUpdate(ctx context.Context, current *domain.Ticket, input TicketUpdateInput) (updatePlan, error) {
	next := current.Clone()
	details := map[string]any{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		switch {
		case title == "":
			details["title"] = "required"
		case utf8.RuneCountInString(title) > maxTitleLength:
			details["title"] = "max 200 characters"
		}
		next.Title = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			details["description"] = "required"
		}
		next.Description = description
	}
	if input.Category != nil {
		category, ok := domain.ParseCategory(*input.Category)
		if !ok {
			details["category"] = "unknown"
		}
		next.Category = category
	}
	if input.Priority != nil {
		p, ok := domain.ParsePriority(*input.Priority)
		if !ok {
			details["priority"] = "unknown"
		}
		next.Priority = p
		next.PriorityOverridden = true
	}
	var target domain.TicketStatus
	if input.Status != nil {
		status, ok := domain.ParseStatus(*input.Status)
		if !ok {
			details["status"] = "unknown"
		}
		target = status
	}
	if len(details) > 0 {
		return updatePlan{}, apperrors.NewValidationError("invalid ticket update", details)
	}

	if current.Status.IsTerminal() &&
		(input.Title != nil || input.Description != nil || input.Category != nil || input.Priority != nil || input.Assignee != nil) {
		return updatePlan{}, apperrors.NewInvalidTransition("resolved and closed tickets can only change status",
			map[string]any{"status": current.Status})
	}

	if input.Assignee != nil {
		assigneeID := strings.TrimSpace(*input.Assignee)
		if assigneeID == "" {
			next.AssignedTo = nil
		} else {
			assignee, err := s.users.GetByID(ctx, assigneeID)
			if err != nil {
				return updatePlan{}, repoError(err, "assignee", map[string]any{"assigned_to": assigneeID})
			}
			if !assignee.Active || !assignee.IsStaff() {
				return updatePlan{}, apperrors.NewValidationError("assignee must be an active technician or admin",
					map[string]any{"assigned_to": assigneeID})
			}
			next.AssignedTo = &assignee.ID
		}
	}

	switch {
	case input.Status != nil:
		if target != current.Status && !CanTransition(current.Status, target) {
			return updatePlan{}, apperrors.NewInvalidTransition("status transition not allowed",
				map[string]any{"from": current.Status, "to": target})
		}
		next.Status = target
	case input.Assignee != nil && next.AssignedTo != nil && current.Status == domain.TicketStatusOpen:
		next.Status = domain.TicketStatusAssigned
	case input.Assignee != nil && next.AssignedTo == nil && current.Status == domain.TicketStatusAssigned:
		next.Status = domain.TicketStatusOpen
	}
	if (input.Status != nil || input.Assignee != nil) && next.Status == domain.TicketStatusAssigned && next.AssignedTo == nil {
		return updatePlan{}, apperrors.NewValidationError("assigned status requires an assignee",
			map[string]any{"assigned_to": "required"})
	}

	return updatePlan{current: current, next: next}, nil
}
