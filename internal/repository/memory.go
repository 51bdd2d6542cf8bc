package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

// MemoryStore keeps every record in process memory. It backs the service when no
// database is configured and in tests. Reads and writes hand out copies, so callers
// never observe partially applied changes.
type MemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	comments map[string][]domain.Comment
	history  map[string][]domain.TicketHistory
	users    map[string]*domain.User
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*domain.Ticket),
		comments: make(map[string][]domain.Comment),
		history:  make(map[string][]domain.TicketHistory),
		users:    make(map[string]*domain.User),
	}
}

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// Comments exposes the store as a CommentRepository.
func (s *MemoryStore) Comments() CommentRepository { return memoryComments{s} }

// History exposes the store as a TicketHistoryRepository.
func (s *MemoryStore) History() TicketHistoryRepository { return memoryHistory{s} }

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if _, exists := m.s.tickets[ticket.ID]; exists {
		return ErrDuplicate
	}
	if _, ok := m.s.users[ticket.CreatedBy]; !ok {
		return ErrReferenced
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	stored := ticket.Clone()
	stored.Comments = nil
	m.s.tickets[ticket.ID] = stored
	return nil
}

func (m memoryTickets) Update(_ context.Context, ticket *domain.Ticket, expectedVersion int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	current, ok := m.s.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := ticket.Clone()
	stored.Comments = nil
	stored.ExternalKey = current.ExternalKey
	stored.CreatedBy = current.CreatedBy
	stored.CreatedAt = current.CreatedAt
	stored.Impact = current.Impact
	stored.Urgency = current.Urgency
	stored.Version = current.Version + 1
	m.s.tickets[ticket.ID] = stored
	ticket.Version = stored.Version
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (m memoryTickets) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.tickets, id)
	delete(m.s.comments, id)
	delete(m.s.history, id)
	return nil
}

func (m memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var search string
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}

	matched := make([]*domain.Ticket, 0, len(m.s.tickets))
	for _, t := range m.s.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil && !t.IsAssignedTo(*filter.AssignedTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsValue(filter.Priorities, t.Priority) {
			continue
		}
		if len(filter.Categories) > 0 && !containsValue(filter.Categories, t.Category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	result := []domain.Ticket{}
	for i := offset; i < len(matched) && len(result) < limit; i++ {
		result = append(result, *matched[i].Clone())
	}
	return result, nil
}

func (m memoryTickets) CountByPriority(_ context.Context) (map[domain.TicketPriority]int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	counts := make(map[domain.TicketPriority]int)
	for _, t := range m.s.tickets {
		counts[t.Priority]++
	}
	return counts, nil
}

func (m memoryTickets) CountActiveByAssignee(_ context.Context) (map[string]int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	counts := make(map[string]int)
	for _, t := range m.s.tickets {
		if t.AssignedTo != nil && t.Status.IsActive() {
			counts[*t.AssignedTo]++
		}
	}
	return counts, nil
}

type memoryComments struct{ s *MemoryStore }

func (m memoryComments) Append(_ context.Context, comment *domain.Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	ticket, ok := m.s.tickets[comment.TicketID]
	if !ok {
		return ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	m.s.comments[comment.TicketID] = append(m.s.comments[comment.TicketID], *comment)
	ticket.UpdatedAt = comment.CreatedAt
	ticket.Version++
	return nil
}

func (m memoryComments) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	return append([]domain.Comment{}, m.s.comments[ticketID]...), nil
}

type memoryHistory struct{ s *MemoryStore }

func (m memoryHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tickets[entry.TicketID]; !ok {
		return ErrReferenced
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.s.history[entry.TicketID] = append(m.s.history[entry.TicketID], *entry)
	return nil
}

func (m memoryHistory) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	limit, offset = normalizePage(limit, offset)
	entries := m.s.history[ticketID]
	result := []domain.TicketHistory{}
	for i := offset; i < len(entries) && len(result) < limit; i++ {
		result = append(result, entries[i])
	}
	return result, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	if m.emailTaken(user.Email, "") {
		return ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stored := *user
	m.s.users[user.ID] = &stored
	return nil
}

func (m memoryUsers) Update(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	current, ok := m.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	user.Email = strings.ToLower(user.Email)
	if m.emailTaken(user.Email, user.ID) {
		return ErrDuplicate
	}
	stored := *user
	stored.CreatedAt = current.CreatedAt
	m.s.users[user.ID] = &stored
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	user, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range m.s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryUsers) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	matched := make([]domain.User, 0, len(m.s.users))
	for _, user := range m.s.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		matched = append(matched, *user)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name == matched[j].Name {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Name < matched[j].Name
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.User{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// Delete mirrors the relational constraints: creators cannot be removed while they own
// tickets, and assignments to a removed user are cleared.
func (m memoryUsers) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[id]; !ok {
		return ErrNotFound
	}
	for _, t := range m.s.tickets {
		if t.CreatedBy == id {
			return ErrReferenced
		}
	}
	for _, t := range m.s.tickets {
		if t.IsAssignedTo(id) {
			t.AssignedTo = nil
		}
	}
	delete(m.s.users, id)
	return nil
}

func (m memoryUsers) emailTaken(email, exceptID string) bool {
	for id, user := range m.s.users {
		if id != exceptID && user.Email == email {
			return true
		}
	}
	return false
}

func containsValue[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
