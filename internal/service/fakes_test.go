package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/triage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

type fakeUserRepo struct {
	users []*domain.User
}

func (r *fakeUserRepo) add(name, email string, role domain.Role) *domain.User {
	user := &domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	}
	r.users = append(r.users, user)
	return user
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return apperrors.NewConflict("User already exists with this email")
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	clone := *user
	r.users = append(r.users, &clone)
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, user := range r.users {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var result []domain.User
	for _, user := range r.users {
		if user.Role == role {
			result = append(result, *user)
		}
	}
	return result, nil
}

type fakeTicketRepo struct {
	tickets        []*domain.Ticket
	lastStatsScope *string
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets = append(r.tickets, &clone)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	for _, ticket := range r.tickets {
		if ticket.ID == id {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	for i, existing := range r.tickets {
		if existing.ID == ticket.ID {
			ticket.UpdatedAt = time.Now()
			clone := *ticket
			r.tickets[i] = &clone
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	for i, existing := range r.tickets {
		if existing.ID == id {
			r.tickets = append(r.tickets[:i], r.tickets[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && ticket.Category != *filter.Category {
			continue
		}
		if filter.Priority != nil && ticket.Priority != *filter.Priority {
			continue
		}
		if filter.AssigneeID != nil && ticket.AssignedTo.ID != *filter.AssigneeID {
			continue
		}
		matched = append(matched, *ticket)
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortDesc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []domain.Ticket{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *fakeTicketRepo) Stats(_ context.Context, assigneeID *string) (*domain.TicketStats, error) {
	r.lastStatsScope = assigneeID
	stats := &domain.TicketStats{
		ByPriority: make(map[domain.TicketPriority]int),
		ByCategory: make(map[domain.TicketCategory]int),
	}
	for _, ticket := range r.tickets {
		if assigneeID != nil && ticket.AssignedTo.ID != *assigneeID {
			continue
		}
		stats.Total++
		switch ticket.Status {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusInProgress:
			stats.InProgress++
		case domain.TicketStatusResolved:
			stats.Resolved++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
		stats.ByPriority[ticket.Priority]++
		stats.ByCategory[ticket.Category]++
	}
	return stats, nil
}

// stubCategorizer returns a fixed triage result.
type stubCategorizer struct {
	result triage.Result
}

func (s stubCategorizer) Categorize(context.Context, string, string) triage.Result {
	return s.result
}
