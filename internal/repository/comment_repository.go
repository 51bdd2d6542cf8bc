package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

// CommentRepository manages the append-only discussion thread of a ticket.
type CommentRepository interface {
	// Append stores the comment and refreshes the parent ticket's updated_at in one transaction.
	Append(ctx context.Context, comment *domain.Comment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) Append(ctx context.Context, comment *domain.Comment) error {
	if _, err := uuid.Parse(comment.TicketID); err != nil {
		return ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE tickets SET updated_at=$1, version=version+1 WHERE id=$2`,
			comment.CreatedAt, comment.TicketID)
		if err != nil {
			return translate(err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}

		const query = `
            INSERT INTO ticket_comments (id, ticket_id, author_id, author_name, body, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)`
		_, err = tx.Exec(ctx, query,
			comment.ID,
			comment.TicketID,
			comment.AuthorID,
			comment.AuthorName,
			comment.Text,
			comment.CreatedAt,
		)
		return translate(err)
	})
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return []domain.Comment{}, nil
	}
	const query = `
        SELECT id, ticket_id, author_id, author_name, body, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(
			&c.ID,
			&c.TicketID,
			&c.AuthorID,
			&c.AuthorName,
			&c.Text,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
