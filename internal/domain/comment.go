package domain

import "time"

// Comment is an entry in a ticket's append-only discussion thread.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time
}
