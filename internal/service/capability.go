package service

import "github.com/helpdeskhq/support-desk/internal/domain"

// Field names a mutable part of a ticket. Resolution and Deletion are pseudo-fields for
// the resolve and delete operations so that every mutation goes through CanMutate.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldPriority    Field = "priority"
	FieldStatus      Field = "status"
	FieldAssignee    Field = "assigned_to"
	FieldResolution  Field = "resolution"
	FieldDeletion    Field = "deletion"
)

// IsContent reports whether the field belongs to the requester-editable content.
func (f Field) IsContent() bool {
	return f == FieldTitle || f == FieldDescription || f == FieldCategory
}

// CanMutate is the single authorization decision for ticket mutations:
//   - content fields: the creator, technicians and admins;
//   - priority, status, assignee and resolution: technicians and admins;
//   - deletion: the creator and admins.
//
// All fields must be allowed. Lifecycle rules (terminal statuses) are checked separately.
func CanMutate(actor *domain.User, ticket *domain.Ticket, fields []Field) bool {
	if actor == nil || ticket == nil || len(fields) == 0 {
		return false
	}
	creator := ticket.CreatedBy == actor.ID
	for _, f := range fields {
		var ok bool
		switch {
		case f.IsContent():
			ok = creator || actor.IsStaff()
		case f == FieldPriority, f == FieldStatus, f == FieldAssignee, f == FieldResolution:
			ok = actor.IsStaff()
		case f == FieldDeletion:
			ok = creator || actor.IsAdmin()
		}
		if !ok {
			return false
		}
	}
	return true
}

// CanRead reports whether actor may see the ticket and comment on it.
func CanRead(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil || ticket == nil {
		return false
	}
	return actor.IsStaff() || ticket.CreatedBy == actor.ID || ticket.IsAssignedTo(actor.ID)
}
