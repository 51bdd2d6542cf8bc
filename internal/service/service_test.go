package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/helpdeskhq/support-desk/internal/config"
	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/repository"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

type fixture struct {
	store    *repository.MemoryStore
	tickets  *TicketService
	assign   *AssignmentService
	users    *UserService
	auth     *AuthService
	recorder *eventRecorder
	clock    *stepClock

	requester *domain.User
	other     *domain.User
	tech      *domain.User
	tech2     *domain.User
	admin     *domain.User
}

type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := &stepClock{cur: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	for _, eventType := range events.AllTypes {
		dispatcher.Subscribe(eventType, recorder.handle)
	}

	tickets := NewTicketService(TicketDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		HistoryRepo: store.History(),
		UserRepo:    store.Users(),
		Dispatcher:  dispatcher,
		Clock:       clock.Now,
	})
	f := &fixture{
		store:    store,
		tickets:  tickets,
		recorder: recorder,
		clock:    clock,
		assign: NewAssignmentService(AssignmentDependencies{
			TicketRepo:    store.Tickets(),
			UserRepo:      store.Users(),
			TicketService: tickets,
		}),
		users: NewUserService(UserDependencies{
			UserRepo:   store.Users(),
			TicketRepo: store.Tickets(),
			BcryptCost: bcrypt.MinCost,
			Clock:      clock.Now,
		}),
		auth: NewAuthService(config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            bcrypt.MinCost,
		}, AuthDependencies{UserRepo: store.Users(), Clock: clock.Now}),
	}
	f.requester = f.seedUser(t, "u-requester", "Alice Requester", domain.RoleUser)
	f.other = f.seedUser(t, "u-other", "Bob Other", domain.RoleUser)
	f.tech = f.seedUser(t, "u-tech", "Carla Tech", domain.RoleTechnician)
	f.tech2 = f.seedUser(t, "u-tech2", "Dan Tech", domain.RoleTechnician)
	f.admin = f.seedUser(t, "u-admin", "Eve Admin", domain.RoleAdmin)
	return f
}

func (f *fixture) seedUser(t *testing.T, id, name string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:     id,
		Name:   name,
		Email:  id + "@example.com",
		Role:   role,
		Active: true,
	}
	if err := f.store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

func (f *fixture) createTicket(t *testing.T, actor *domain.User) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), actor, TicketCreateInput{
		Title:       "Imprimante du 2e étage",
		Description: "bourrage papier",
		Category:    "printer",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func strPtr(v string) *string {
	return &v
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
