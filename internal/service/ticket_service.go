package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeskhq/support-desk/internal/cache"
	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/observability"
	"github.com/helpdeskhq/support-desk/internal/priority"
	"github.com/helpdeskhq/support-desk/internal/repository"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

const (
	maxTitleLength   = 200
	maxWriteAttempts = 3
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	stats      cache.StatsCache
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	UserRepo    repository.UserRepository
	StatsCache  cache.StatsCache
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// TicketCreateInput describes ticket creation payload. Category and PriorityOverride accept
// canonical values or known labels.
type TicketCreateInput struct {
	Title            string
	Description      string
	Category         string
	PriorityOverride string
}

// TicketUpdateInput carries the fields to change; nil means untouched. An Assignee pointing
// to an empty string clears the assignment. A non-zero ExpectedVersion makes the update
// fail with a conflict when the ticket changed since it was read.
type TicketUpdateInput struct {
	Title           *string
	Description     *string
	Category        *string
	Priority        *string
	Status          *string
	Assignee        *string
	ExpectedVersion int
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	AssignedTo *string
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	stats := deps.StatsCache
	if stats == nil {
		stats = cache.NopStatsCache{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		stats:      stats,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// CreateTicket opens a ticket for actor. The priority is inferred from the text unless the
// caller overrides it.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	classification, err := priority.Classify(title, description, domain.TicketCategory(input.Category))
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, apperrors.NewValidationError("title too long", map[string]any{"title": "max 200 characters"})
	}
	category, _ := domain.ParseCategory(input.Category)

	ticketPriority := classification.Priority
	overridden := false
	if raw := strings.TrimSpace(input.PriorityOverride); raw != "" {
		p, ok := domain.ParsePriority(raw)
		if !ok {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": raw})
		}
		ticketPriority = p
		overridden = true
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:                 uuid.NewString(),
		ExternalKey:        generateTicketKey(),
		Title:              title,
		Description:        description,
		Category:           category,
		Status:             domain.TicketStatusOpen,
		Priority:           ticketPriority,
		PriorityOverridden: overridden,
		Impact:             classification.Impact,
		Urgency:            classification.Urgency,
		CreatedBy:          actor.ID,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, repoError(err, "ticket", nil)
	}
	ticket.Comments = []domain.Comment{}

	s.metrics.RecordTicketCreated(string(ticket.Priority))
	s.invalidateStats(ctx)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			Title:       ticket.Title,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Overridden:  ticket.PriorityOverridden,
		},
	})
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("key", ticket.ExternalKey),
		zap.String("priority", string(ticket.Priority)),
		zap.Strings("matched_keywords", classification.MatchedKeywords))
	return ticket, nil
}

// GetTicket returns the ticket with its comments.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !CanRead(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if err := s.attachComments(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns tickets visible to actor, newest first. Requesters only see their
// own tickets.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		AssignedTo: filter.AssignedTo,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if !actor.IsStaff() {
		repoFilter.CreatedBy = &actor.ID
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, repoError(err, "tickets", nil)
	}
	return tickets, nil
}

// UpdateTicket applies a partial update. Authorization and every validation run before the
// single store write; a rejected request leaves the ticket untouched.
//
// The write is always conditional on the version that was read. Without an expected version
// from the caller a lost race is retried against the fresh ticket, so rules are re-checked
// against what a concurrent writer stored.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	fields := input.fields()
	if len(fields) == 0 {
		return nil, apperrors.NewValidationError("no fields to update", nil)
	}

	var (
		current, updated *domain.Ticket
		err              error
	)
	for attempt := 1; ; attempt++ {
		current, updated, err = s.applyUpdate(ctx, actor, ticketID, input, fields)
		if !s.retryWrite(err, input.ExpectedVersion, attempt) {
			break
		}
	}
	if err != nil {
		return nil, repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if updated == nil {
		if err := s.attachComments(ctx, current); err != nil {
			return nil, err
		}
		return current, nil
	}

	s.recordChanges(ctx, actor, current, updated)
	if current.Priority != updated.Priority {
		s.invalidateStats(ctx)
	}
	s.publishChanges(ctx, actor, current, updated)

	if err := s.attachComments(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// applyUpdate runs one read-check-write cycle. A nil updated ticket means nothing changed.
func (s *TicketService) applyUpdate(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput, fields []Field) (current, updated *domain.Ticket, err error) {
	current, err = s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !CanMutate(actor, current, fields) {
		if !CanRead(actor, current) {
			return nil, nil, apperrors.NewForbidden("access denied")
		}
		return nil, nil, apperrors.NewForbidden("insufficient role for the requested fields")
	}
	if err := checkExpectedVersion(current, input.ExpectedVersion); err != nil {
		return nil, nil, err
	}

	plan, err := s.planUpdate(ctx, current, input)
	if err != nil {
		return nil, nil, err
	}
	if !plan.changed() {
		return current, nil, nil
	}

	updated = plan.next
	updated.UpdatedAt = s.now()
	if updated.Status == domain.TicketStatusClosed && current.Status != domain.TicketStatusClosed {
		closedAt := updated.UpdatedAt
		updated.ClosedAt = &closedAt
	}
	if err := s.tickets.Update(ctx, updated, current.Version); err != nil {
		return nil, nil, err
	}
	return current, updated, nil
}

// retryWrite reports whether a lost version race should be replayed. Callers that pinned a
// version get the conflict instead.
func (s *TicketService) retryWrite(err error, expectedVersion, attempt int) bool {
	if !errors.Is(err, repository.ErrVersionConflict) || expectedVersion > 0 {
		return false
	}
	if attempt >= maxWriteAttempts {
		s.logger.Warn("ticket write kept losing version races", zap.Int("attempts", attempt))
		return false
	}
	return true
}

func checkExpectedVersion(current *domain.Ticket, expected int) error {
	if expected > 0 && current.Version != expected {
		return repository.ErrVersionConflict
	}
	return nil
}

// ResolveTicket moves the ticket to resolved and attaches the resolution record in one write.
func (s *TicketService) ResolveTicket(ctx context.Context, actor *domain.User, ticketID string, input ResolutionInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		current, updated *domain.Ticket
		err              error
	)
	for attempt := 1; ; attempt++ {
		current, updated, err = s.applyResolution(ctx, actor, ticketID, input)
		if !s.retryWrite(err, input.ExpectedVersion, attempt) {
			break
		}
	}
	if err != nil {
		return nil, repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	resolution := updated.Resolution

	s.recordHistory(ctx, &domain.TicketHistory{
		TicketID:    updated.ID,
		ChangedByID: actor.ID,
		ChangeType:  domain.ChangeTypeResolution,
		OldValue:    map[string]any{"status": current.Status},
		NewValue: map[string]any{
			"status":          updated.Status,
			"resolution_type": resolution.Type,
			"time_spent":      resolution.TimeSpentMinutes,
		},
	})
	s.metrics.RecordTicketResolved(string(resolution.Type))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketResolved,
		TicketID: updated.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketResolvedPayload{
			ResolutionType:   resolution.Type,
			TimeSpentMinutes: resolution.TimeSpentMinutes,
			ResolvedAt:       resolution.ResolvedAt,
		},
	})

	if err := s.attachComments(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// applyResolution runs one read-check-write cycle of ResolveTicket.
func (s *TicketService) applyResolution(ctx context.Context, actor *domain.User, ticketID string, input ResolutionInput) (current, updated *domain.Ticket, err error) {
	current, err = s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !CanMutate(actor, current, []Field{FieldResolution}) {
		return nil, nil, apperrors.NewForbidden("technician or admin role required")
	}
	if err := checkExpectedVersion(current, input.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	if current.Status.IsTerminal() {
		return nil, nil, apperrors.NewInvalidTransition("ticket is already resolved or closed",
			map[string]any{"status": current.Status})
	}

	now := s.now()
	resolution, err := BuildResolution(input, actor.ID, now)
	if err != nil {
		return nil, nil, err
	}

	updated = current.Clone()
	updated.Status = domain.TicketStatusResolved
	updated.Resolution = resolution
	updated.UpdatedAt = now
	if err := s.tickets.Update(ctx, updated, current.Version); err != nil {
		return nil, nil, err
	}
	return current, updated, nil
}

// DeleteTicket removes the ticket together with its comments, history and resolution.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, ticketID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !CanMutate(actor, ticket, []Field{FieldDeletion}) {
		return apperrors.NewForbidden("only the creator or an admin can delete a ticket")
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}

	s.invalidateStats(ctx)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
	})
	s.logger.Info("ticket deleted", zap.String("ticket_id", ticket.ID), zap.String("actor_id", actor.ID))
	return nil
}

// AddComment appends a comment and returns the ticket with its full thread.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, text string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !CanRead(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text is required", map[string]any{"text": "required"})
	}

	comment := &domain.Comment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Text:       text,
		CreatedAt:  s.now(),
	}
	if err := s.comments.Append(ctx, comment); err != nil {
		return nil, repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			BodyPreview: stringPreview(comment.Text, 120),
		},
	})

	refreshed, err := s.loadTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if err := s.attachComments(ctx, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// PriorityStatistics counts tickets per priority, always listing all four priorities from
// critical to low.
func (s *TicketService) PriorityStatistics(ctx context.Context, actor *domain.User) ([]domain.PriorityCount, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cached, generation, ok, err := s.stats.Get(ctx)
	if err != nil {
		s.logger.Warn("read statistics cache", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	counts, err := s.tickets.CountByPriority(ctx)
	if err != nil {
		return nil, repoError(err, "statistics", nil)
	}
	result := make([]domain.PriorityCount, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		result = append(result, domain.PriorityCount{Priority: p, Count: counts[p]})
	}
	if err := s.stats.Set(ctx, generation, result); err != nil {
		s.logger.Warn("write statistics cache", zap.Error(err))
	}
	return result, nil
}

// PreviewPriority runs the classifier without persisting anything.
func (s *TicketService) PreviewPriority(_ context.Context, actor *domain.User, title, description, category string) (priority.Classification, error) {
	if err := requireActor(actor); err != nil {
		return priority.Classification{}, err
	}
	return priority.Classify(title, description, domain.TicketCategory(category))
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, repoError(err, "history", nil)
	}
	return entries, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, repoError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) attachComments(ctx context.Context, ticket *domain.Ticket) error {
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return repoError(err, "comments", nil)
	}
	ticket.Comments = comments
	return nil
}

func (s *TicketService) invalidateStats(ctx context.Context) {
	if err := s.stats.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate statistics cache", zap.Error(err))
	}
}

// recordHistory is best effort: the ticket write has already been committed, so a failing
// audit insert is logged rather than reported as a failed mutation.
func (s *TicketService) recordHistory(ctx context.Context, entry *domain.TicketHistory) {
	if s.history == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record ticket history",
			zap.String("ticket_id", entry.TicketID),
			zap.String("change_type", string(entry.ChangeType)),
			zap.Error(err))
	}
}

func (s *TicketService) recordChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket) {
	if before.Status != after.Status {
		s.recordHistory(ctx, &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeStatus,
			OldValue:    map[string]any{"status": before.Status},
			NewValue:    map[string]any{"status": after.Status},
		})
	}
	if before.Priority != after.Priority {
		s.recordHistory(ctx, &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypePriority,
			OldValue:    map[string]any{"priority": before.Priority},
			NewValue:    map[string]any{"priority": after.Priority},
		})
	}
	if !sameAssignee(before.AssignedTo, after.AssignedTo) {
		s.recordHistory(ctx, &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeAssignee,
			OldValue:    map[string]any{"assigned_to": before.AssignedTo},
			NewValue:    map[string]any{"assigned_to": after.AssignedTo},
		})
	}
	if oldValues, newValues := contentDiff(before, after); len(newValues) > 0 {
		s.recordHistory(ctx, &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeContent,
			OldValue:    oldValues,
			NewValue:    newValues,
		})
	}
}

func (s *TicketService) publishChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket) {
	eventActor := events.ActorFrom(actor)
	if before.Status != after.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: after.ID,
			Actor:    eventActor,
			Payload:  events.TicketStatusChangedPayload{OldStatus: before.Status, NewStatus: after.Status},
		})
	}
	if before.Priority != after.Priority {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: after.ID,
			Actor:    eventActor,
			Payload:  events.TicketPriorityChangedPayload{OldPriority: before.Priority, NewPriority: after.Priority},
		})
	}
	if !sameAssignee(before.AssignedTo, after.AssignedTo) {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: after.ID,
			Actor:    eventActor,
			Payload:  events.TicketAssignedPayload{OldAssignee: before.AssignedTo, NewAssignee: after.AssignedTo},
		})
	}
	if _, newValues := contentDiff(before, after); len(newValues) > 0 {
		changed := make([]string, 0, len(newValues))
		for _, f := range []Field{FieldTitle, FieldDescription, FieldCategory} {
			if _, ok := newValues[string(f)]; ok {
				changed = append(changed, string(f))
			}
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: after.ID,
			Actor:    eventActor,
			Payload:  events.TicketUpdatedPayload{Fields: changed},
		})
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func contentDiff(before, after *domain.Ticket) (map[string]any, map[string]any) {
	oldValues := map[string]any{}
	newValues := map[string]any{}
	if before.Title != after.Title {
		oldValues[string(FieldTitle)] = before.Title
		newValues[string(FieldTitle)] = after.Title
	}
	if before.Description != after.Description {
		oldValues[string(FieldDescription)] = before.Description
		newValues[string(FieldDescription)] = after.Description
	}
	if before.Category != after.Category {
		oldValues[string(FieldCategory)] = before.Category
		newValues[string(FieldCategory)] = after.Category
	}
	return oldValues, newValues
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
