package service

import (
	"testing"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

func TestCanMutate(t *testing.T) {
	creator := &domain.User{ID: "creator", Role: domain.RoleUser}
	stranger := &domain.User{ID: "stranger", Role: domain.RoleUser}
	tech := &domain.User{ID: "tech", Role: domain.RoleTechnician}
	admin := &domain.User{ID: "admin", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: "t1", CreatedBy: creator.ID}

	cases := []struct {
		actor  *domain.User
		fields []Field
		want   bool
	}{
		{creator, []Field{FieldTitle, FieldDescription, FieldCategory}, true},
		{creator, []Field{FieldTitle, FieldPriority}, false},
		{creator, []Field{FieldStatus}, false},
		{creator, []Field{FieldResolution}, false},
		{creator, []Field{FieldDeletion}, true},
		{stranger, []Field{FieldTitle}, false},
		{stranger, []Field{FieldDeletion}, false},
		{tech, []Field{FieldTitle, FieldPriority, FieldStatus, FieldAssignee}, true},
		{tech, []Field{FieldResolution}, true},
		{tech, []Field{FieldDeletion}, false},
		{admin, []Field{FieldPriority, FieldAssignee}, true},
		{admin, []Field{FieldDeletion}, true},
		{admin, nil, false},
		{nil, []Field{FieldTitle}, false},
	}
	for _, tt := range cases {
		if got := CanMutate(tt.actor, ticket, tt.fields); got != tt.want {
			t.Fatalf("CanMutate(%v, %v)=%v, want %v", tt.actor, tt.fields, got, tt.want)
		}
	}
	if CanMutate(admin, nil, []Field{FieldTitle}) {
		t.Fatalf("nil ticket must not be mutable")
	}
}

func TestCanRead(t *testing.T) {
	assignee := "tech"
	ticket := &domain.Ticket{ID: "t1", CreatedBy: "creator", AssignedTo: &assignee}
	cases := []struct {
		actor *domain.User
		want  bool
	}{
		{&domain.User{ID: "creator", Role: domain.RoleUser}, true},
		{&domain.User{ID: "stranger", Role: domain.RoleUser}, false},
		{&domain.User{ID: "tech", Role: domain.RoleTechnician}, true},
		{&domain.User{ID: "other-tech", Role: domain.RoleTechnician}, true},
		{nil, false},
	}
	for _, tt := range cases {
		if got := CanRead(tt.actor, ticket); got != tt.want {
			t.Fatalf("CanRead(%v)=%v, want %v", tt.actor, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.TicketStatus
		want     bool
	}{
		{domain.TicketStatusOpen, domain.TicketStatusInProgress, true},
		{domain.TicketStatusInProgress, domain.TicketStatusOpen, true},
		{domain.TicketStatusOpen, domain.TicketStatusResolved, false},
		{domain.TicketStatusOpen, domain.TicketStatusClosed, false},
		{domain.TicketStatusResolved, domain.TicketStatusClosed, true},
		{domain.TicketStatusResolved, domain.TicketStatusOpen, false},
		{domain.TicketStatusClosed, domain.TicketStatusOpen, false},
	}
	for _, tt := range cases {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%q,%q)=%v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStringPreview(t *testing.T) {
	if got := stringPreview("  court  ", 10); got != "court" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := stringPreview("éééééééééé", 6); got != "ééé..." {
		t.Fatalf("preview must cut on runes, got %q", got)
	}
}
