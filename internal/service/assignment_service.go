package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/repository"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	updater *TicketService
	logger  *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo    repository.TicketRepository
	UserRepo      repository.UserRepository
	TicketService *TicketService
	Logger        *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets: deps.TicketRepo,
		users:   deps.UserRepo,
		updater: deps.TicketService,
		logger:  logger,
	}
}

// SelfAssignTicket assigns the ticket to the calling technician or admin.
func (s *AssignmentService) SelfAssignTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.updater.UpdateTicket(ctx, actor, ticketID, TicketUpdateInput{Assignee: &actor.ID})
}

// AutoAssignTicket picks the active technician with the fewest open, assigned or in-progress
// tickets. Ties are broken deterministically from the ticket id so retries land on the same
// technician.
func (s *AssignmentService) AutoAssignTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("resolved and closed tickets cannot be assigned",
			map[string]any{"status": ticket.Status})
	}

	candidates, err := s.eligibleTechnicians(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewConflict("no active technician available", nil)
	}
	load, err := s.tickets.CountActiveByAssignee(ctx)
	if err != nil {
		return nil, repoError(err, "tickets", nil)
	}

	least := -1
	var lightest []domain.User
	for _, c := range candidates {
		n := load[c.ID]
		switch {
		case least < 0 || n < least:
			least = n
			lightest = []domain.User{c}
		case n == least:
			lightest = append(lightest, c)
		}
	}
	sort.Slice(lightest, func(i, j int) bool {
		return lightest[i].ID < lightest[j].ID
	})
	assignee := lightest[selectIndex(ticket.ID, len(lightest))]

	s.logger.Info("auto assigning ticket",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee_id", assignee.ID),
		zap.Int("active_tickets", least))
	return s.updater.UpdateTicket(ctx, actor, ticket.ID, TicketUpdateInput{Assignee: &assignee.ID})
}

func (s *AssignmentService) eligibleTechnicians(ctx context.Context) ([]domain.User, error) {
	role := domain.RoleTechnician
	users, err := s.users.List(ctx, repository.UserFilter{
		Role:   &role,
		Active: ptrBool(true),
		Limit:  200,
	})
	if err != nil {
		return nil, repoError(err, "users", nil)
	}
	return users, nil
}

func selectIndex(key string, length int) int {
	if length == 0 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}
