package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence. Comments live in CommentRepository;
// the resolution record is stored with the ticket row so that status and resolution are
// always written together.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update overwrites the ticket. A non-zero expectedVersion makes the write conditional.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByPriority(ctx context.Context) (map[domain.TicketPriority]int, error)
	CountActiveByAssignee(ctx context.Context) (map[string]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, title, description, category, status, priority, priority_overridden,
               impact, urgency, created_by, assigned_to, version,
               resolution_solution, resolution_type, resolution_root_cause, resolution_steps,
               resolution_time_spent, resolution_resolved_by, resolved_at,
               created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	res := resolutionColumns(ticket.Resolution)
	const query = `
        INSERT INTO tickets (id, external_key, title, description, category, status, priority, priority_overridden,
            impact, urgency, created_by, assigned_to, version,
            resolution_solution, resolution_type, resolution_root_cause, resolution_steps,
            resolution_time_spent, resolution_resolved_by, resolved_at,
            created_at, updated_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.PriorityOverridden,
		ticket.Impact,
		ticket.Urgency,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.Version,
		res.solution,
		res.kind,
		res.rootCause,
		res.steps,
		res.timeSpent,
		res.resolvedBy,
		res.resolvedAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
	)
	return translate(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int) error {
	res := resolutionColumns(ticket.Resolution)
	query := `
        UPDATE tickets SET title=$1, description=$2, category=$3, status=$4, priority=$5, priority_overridden=$6,
            assigned_to=$7, resolution_solution=$8, resolution_type=$9, resolution_root_cause=$10,
            resolution_steps=$11, resolution_time_spent=$12, resolution_resolved_by=$13, resolved_at=$14,
            updated_at=$15, closed_at=$16, version=version+1
        WHERE id=$17`
	args := []any{
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.PriorityOverridden,
		ticket.AssignedTo,
		res.solution,
		res.kind,
		res.rootCause,
		res.steps,
		res.timeSpent,
		res.resolvedBy,
		res.resolvedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ID,
	}
	if expectedVersion > 0 {
		args = append(args, expectedVersion)
		query += fmt.Sprintf(" AND version=$%d", len(args))
	}
	query += " RETURNING version"

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&ticket.Version); err != nil {
		err = translate(err)
		if err == ErrNotFound && expectedVersion > 0 {
			if _, getErr := r.GetByID(ctx, ticket.ID); getErr == nil {
				return ErrVersionConflict
			}
		}
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, cat := range filter.Categories {
			args = append(args, cat)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountByPriority(ctx context.Context) (map[domain.TicketPriority]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT priority, COUNT(*) FROM tickets GROUP BY priority`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[domain.TicketPriority]int)
	for rows.Next() {
		var (
			priority domain.TicketPriority
			count    int
		)
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		counts[priority] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountActiveByAssignee(ctx context.Context) (map[string]int, error) {
	const query = `
        SELECT assigned_to, COUNT(*) FROM tickets
        WHERE assigned_to IS NOT NULL AND status IN ('open','assigned','in_progress')
        GROUP BY assigned_to`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			assignee string
			count    int
		)
		if err := rows.Scan(&assignee, &count); err != nil {
			return nil, err
		}
		counts[assignee] = count
	}
	return counts, rows.Err()
}

type resolutionRow struct {
	solution   *string
	kind       *string
	rootCause  *string
	steps      *string
	timeSpent  *int
	resolvedBy *string
	resolvedAt *time.Time
}

func resolutionColumns(res *domain.Resolution) resolutionRow {
	if res == nil {
		return resolutionRow{}
	}
	kind := string(res.Type)
	resolvedAt := res.ResolvedAt
	timeSpent := res.TimeSpentMinutes
	return resolutionRow{
		solution:   &res.SolutionDescription,
		kind:       &kind,
		rootCause:  &res.RootCause,
		steps:      &res.StepsTaken,
		timeSpent:  &timeSpent,
		resolvedBy: &res.ResolvedBy,
		resolvedAt: &resolvedAt,
	}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		res    resolutionRow
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.PriorityOverridden,
		&ticket.Impact,
		&ticket.Urgency,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Version,
		&res.solution,
		&res.kind,
		&res.rootCause,
		&res.steps,
		&res.timeSpent,
		&res.resolvedBy,
		&res.resolvedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	if res.solution != nil && res.resolvedAt != nil {
		ticket.Resolution = &domain.Resolution{
			SolutionDescription: *res.solution,
			Type:                domain.ResolutionType(deref(res.kind)),
			RootCause:           deref(res.rootCause),
			StepsTaken:          deref(res.steps),
			ResolvedBy:          deref(res.resolvedBy),
			ResolvedAt:          *res.resolvedAt,
		}
		if res.timeSpent != nil {
			ticket.Resolution.TimeSpentMinutes = *res.timeSpent
		}
	}
	return &ticket, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
