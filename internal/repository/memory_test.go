package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

func seedUser(t *testing.T, store *MemoryStore, email string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Name: email, Email: email, Role: role, Active: true}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedTicket(t *testing.T, store *MemoryStore, creator string, priority domain.TicketPriority, created time.Time) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Title:       "title",
		Description: "description",
		Category:    domain.CategorySoftware,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		CreatedBy:   creator,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if err := store.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestMemoryTicketUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := seedUser(t, store, "a@example.com", domain.RoleUser)
	ticket := seedTicket(t, store, user.ID, domain.TicketPriorityLow, time.Now())

	if ticket.Version != 1 {
		t.Fatalf("expected version 1, got %d", ticket.Version)
	}
	ticket.Title = "renamed"
	if err := store.Tickets().Update(ctx, ticket, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ticket.Version != 2 {
		t.Fatalf("expected version 2, got %d", ticket.Version)
	}
	if err := store.Tickets().Update(ctx, ticket, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := store.Tickets().Update(ctx, ticket, 0); err != nil {
		t.Fatalf("unconditional update: %v", err)
	}
	got, err := store.Tickets().GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" || got.Version != 3 {
		t.Fatalf("unexpected stored ticket %+v", got)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := seedUser(t, store, "a@example.com", domain.RoleUser)
	ticket := seedTicket(t, store, user.ID, domain.TicketPriorityLow, time.Now())

	got, _ := store.Tickets().GetByID(ctx, ticket.ID)
	got.Title = "mutated"
	again, _ := store.Tickets().GetByID(ctx, ticket.ID)
	if again.Title != "title" {
		t.Fatalf("store leaked internal state: %q", again.Title)
	}
}

func TestMemoryListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	alice := seedUser(t, store, "alice@example.com", domain.RoleUser)
	bob := seedUser(t, store, "bob@example.com", domain.RoleUser)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := seedTicket(t, store, alice.ID, domain.TicketPriorityLow, base)
	second := seedTicket(t, store, alice.ID, domain.TicketPriorityHigh, base.Add(time.Hour))
	seedTicket(t, store, bob.ID, domain.TicketPriorityHigh, base.Add(2*time.Hour))

	list, err := store.Tickets().List(ctx, TicketFilter{CreatedBy: &alice.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first for alice, got %+v", list)
	}

	high, _ := store.Tickets().List(ctx, TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityHigh}})
	if len(high) != 2 {
		t.Fatalf("expected two high tickets, got %d", len(high))
	}

	paged, _ := store.Tickets().List(ctx, TicketFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].ID != second.ID {
		t.Fatalf("unexpected page %+v", paged)
	}
}

func TestMemoryCommentAppendTouchesTicket(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := seedUser(t, store, "a@example.com", domain.RoleUser)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticket := seedTicket(t, store, user.ID, domain.TicketPriorityLow, created)

	for i, text := range []string{"one", "two", "three"} {
		comment := &domain.Comment{TicketID: ticket.ID, AuthorID: user.ID, Text: text, CreatedAt: created.Add(time.Duration(i+1) * time.Minute)}
		if err := store.Comments().Append(ctx, comment); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	comments, _ := store.Comments().ListByTicket(ctx, ticket.ID)
	if len(comments) != 3 || comments[0].Text != "one" || comments[2].Text != "three" {
		t.Fatalf("comments out of order: %+v", comments)
	}
	got, _ := store.Tickets().GetByID(ctx, ticket.ID)
	if !got.UpdatedAt.Equal(created.Add(3 * time.Minute)) {
		t.Fatalf("updated_at not refreshed: %v", got.UpdatedAt)
	}

	err := store.Comments().Append(ctx, &domain.Comment{TicketID: "missing", Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := seedUser(t, store, "a@example.com", domain.RoleUser)
	ticket := seedTicket(t, store, user.ID, domain.TicketPriorityLow, time.Now())
	_ = store.Comments().Append(ctx, &domain.Comment{TicketID: ticket.ID, Text: "hi", CreatedAt: time.Now()})
	_ = store.History().Create(ctx, &domain.TicketHistory{TicketID: ticket.ID, ChangeType: domain.ChangeTypeStatus})

	if err := store.Tickets().Delete(ctx, ticket.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Tickets().GetByID(ctx, ticket.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	comments, _ := store.Comments().ListByTicket(ctx, ticket.ID)
	history, _ := store.History().ListByTicket(ctx, ticket.ID, 0, 0)
	if len(comments) != 0 || len(history) != 0 {
		t.Fatalf("children survived delete: %d comments, %d history", len(comments), len(history))
	}
	if err := store.Tickets().Delete(ctx, ticket.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	creator := seedUser(t, store, "Creator@Example.com", domain.RoleUser)
	tech := seedUser(t, store, "tech@example.com", domain.RoleTechnician)

	if err := store.Users().Create(ctx, &domain.User{Email: "creator@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if _, err := store.Users().GetByEmail(ctx, " CREATOR@example.com "); err != nil {
		t.Fatalf("lookup by email should be case-insensitive: %v", err)
	}

	ticket := seedTicket(t, store, creator.ID, domain.TicketPriorityLow, time.Now())
	ticket.AssignedTo = &tech.ID
	ticket.Status = domain.TicketStatusAssigned
	if err := store.Tickets().Update(ctx, ticket, 0); err != nil {
		t.Fatalf("assign: %v", err)
	}

	load, _ := store.Tickets().CountActiveByAssignee(ctx)
	if load[tech.ID] != 1 {
		t.Fatalf("expected one active ticket for tech, got %v", load)
	}

	if err := store.Users().Delete(ctx, creator.ID); !errors.Is(err, ErrReferenced) {
		t.Fatalf("creator with tickets must not be deleted, got %v", err)
	}
	if err := store.Users().Delete(ctx, tech.ID); err != nil {
		t.Fatalf("delete tech: %v", err)
	}
	got, _ := store.Tickets().GetByID(ctx, ticket.ID)
	if got.AssignedTo != nil {
		t.Fatalf("assignment should be cleared when the assignee is removed")
	}

	role := domain.RoleUser
	users, _ := store.Users().List(ctx, UserFilter{Role: &role})
	if len(users) != 1 || users[0].ID != creator.ID {
		t.Fatalf("unexpected role filter result %+v", users)
	}
}
