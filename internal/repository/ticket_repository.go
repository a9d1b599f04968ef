package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures listing parameters. Nil members are unfiltered.
type TicketFilter struct {
	Status     *domain.TicketStatus
	Category   *domain.TicketCategory
	Priority   *domain.TicketPriority
	AssigneeID *string
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

// sortColumns whitelists API sort keys against real columns.
var sortColumns = map[string]string{
	"createdAt":  "t.created_at",
	"updatedAt":  "t.updated_at",
	"resolvedAt": "t.resolved_at",
	"title":      "t.title",
	"status":     "t.status",
	"priority":   "t.priority",
	"category":   "t.category",
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	Stats(ctx context.Context, assigneeID *string) (*domain.TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        t.id, t.title, t.description, t.priority, t.category, t.status,
        t.attachments, t.created_at, t.updated_at, t.resolved_at,
        c.id, c.name, c.email,
        a.id, a.name, a.email`

const ticketJoins = `
        FROM tickets t
        JOIN users c ON c.id = t.created_by
        JOIN users a ON a.id = t.assigned_to`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, priority, category, status, created_by, assigned_to, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Category,
		ticket.Status,
		ticket.CreatedBy.ID,
		ticket.AssignedTo.ID,
		ticket.Attachments,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT` + ticketColumns + ticketJoins + ` WHERE t.id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, assigned_to=$3, resolved_at=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedTo.ID,
		ticket.ResolvedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("t.category=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("t.priority=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM tickets t WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy, ok := sortColumns[filter.SortBy]
	if !ok {
		orderBy = "t.created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT%s%s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		ticketColumns, ticketJoins, where, orderBy, direction, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, 0, err
		}
		result = append(result, ticket)
	}
	return result, total, rows.Err()
}

func (r *ticketRepository) Stats(ctx context.Context, assigneeID *string) (*domain.TicketStats, error) {
	stats := &domain.TicketStats{
		ByPriority: make(map[domain.TicketPriority]int),
		ByCategory: make(map[domain.TicketCategory]int),
	}

	const overviewQuery = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='in-progress'),
               COUNT(*) FILTER (WHERE status='resolved'),
               COUNT(*) FILTER (WHERE status='closed')
        FROM tickets
        WHERE $1::uuid IS NULL OR assigned_to=$1`
	if err := r.pool.QueryRow(ctx, overviewQuery, assigneeID).Scan(
		&stats.Total,
		&stats.Open,
		&stats.InProgress,
		&stats.Resolved,
		&stats.Closed,
	); err != nil {
		return nil, err
	}

	const priorityQuery = `
        SELECT priority, COUNT(*) FROM tickets
        WHERE $1::uuid IS NULL OR assigned_to=$1
        GROUP BY priority`
	rows, err := r.pool.Query(ctx, priorityQuery, assigneeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var priority domain.TicketPriority
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		stats.ByPriority[priority] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const categoryQuery = `
        SELECT category, COUNT(*) FROM tickets
        WHERE $1::uuid IS NULL OR assigned_to=$1
        GROUP BY category`
	rows, err = r.pool.Query(ctx, categoryQuery, assigneeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category domain.TicketCategory
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Category,
		&ticket.Status,
		&ticket.Attachments,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.CreatedBy.ID,
		&ticket.CreatedBy.Name,
		&ticket.CreatedBy.Email,
		&ticket.AssignedTo.ID,
		&ticket.AssignedTo.Name,
		&ticket.AssignedTo.Email,
	)
}
