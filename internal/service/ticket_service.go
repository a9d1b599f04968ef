package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/triage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// TicketService coordinates the ticket lifecycle.
type TicketService struct {
	tickets     repository.TicketRepository
	users       repository.UserRepository
	categorizer triage.Categorizer
	dispatcher  events.Dispatcher
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	Categorizer triage.Categorizer
	Dispatcher  events.Dispatcher
	Cache       *redis.Client
	CacheTTL    time.Duration
	Rand        *rand.Rand
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		categorizer: deps.Categorizer,
		dispatcher:  deps.Dispatcher,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		logger:      logger,
		rng:         rng,
	}
}

// CreateTicketInput describes the creation payload.
type CreateTicketInput struct {
	Title       string
	Description string
	Priority    *domain.TicketPriority
	Attachments []string
}

// ListQuery captures the raw listing parameters.
type ListQuery struct {
	Status     string
	Category   string
	Priority   string
	AssignedTo string
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

// UpdateTicketInput describes the PATCH payload. Nil members are untouched.
type UpdateTicketInput struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	AssignedTo *string
}

// Pagination is the page metadata returned alongside listings.
type Pagination struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalTickets int  `json:"totalTickets"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

// CreateTicket validates, categorizes, auto-assigns and persists a new
// ticket. The triage suggestion is returned even when the caller supplied
// an explicit priority that overrode it.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input CreateTicketInput) (*domain.Ticket, *triage.Result, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	var details []string
	if len(title) < 5 || len(title) > 200 {
		details = append(details, "Title must be between 5 and 200 characters")
	}
	if len(description) < 10 || len(description) > 2000 {
		details = append(details, "Description must be between 10 and 2000 characters")
	}
	if input.Priority != nil && !domain.ValidTicketPriority(*input.Priority) {
		details = append(details, "Priority must be one of: low, medium, high, urgent")
	}
	if len(details) > 0 {
		return nil, nil, apperrors.NewValidationError(details)
	}

	analysis := s.categorizer.Categorize(ctx, title, description)

	assignee, err := s.pickRandomAgent(ctx)
	if err != nil {
		return nil, nil, err
	}

	priority := analysis.Priority
	if input.Priority != nil {
		priority = *input.Priority
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Priority:    priority,
		Category:    analysis.Category,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   actor.Ref(),
		AssignedTo:  assignee.Ref(),
		Attachments: input.Attachments,
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []string{}
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	s.publish(ctx, actor, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Title:      ticket.Title,
		Category:   ticket.Category,
		Priority:   ticket.Priority,
		AssigneeID: ticket.AssignedTo.ID,
		Confidence: analysis.Confidence,
	})
	s.invalidateStats(ctx, ticket.AssignedTo.ID)

	return ticket, &analysis, nil
}

// ListTickets returns a page of tickets visible to the actor. Agents are
// always scoped to their own assignments regardless of the filter they send.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, query ListQuery) ([]domain.Ticket, *Pagination, error) {
	filter, err := buildFilter(actor, query)
	if err != nil {
		return nil, nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	filter.SortBy = query.SortBy
	if filter.SortBy == "" {
		filter.SortBy = "createdAt"
	}
	filter.SortDesc = query.SortOrder != "asc"

	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}

	totalPages := (total + limit - 1) / limit
	pagination := &Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalTickets: total,
		HasNextPage:  page < totalPages,
		HasPrevPage:  page > 1,
	}
	return tickets, pagination, nil
}

// GetTicket fetches a ticket applying the view policy.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, id string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(actor.Role, policy.ActionView, actor.ID, ticket.AssignedTo.ID) {
		return nil, apperrors.NewForbidden("Access denied: You can only view tickets assigned to you")
	}
	return ticket, nil
}

// UpdateTicket applies a partial update under the capability table. A field
// the actor may not touch fails the whole request; nothing is silently
// dropped.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, id string, input UpdateTicketInput) (*domain.Ticket, error) {
	var details []string
	if input.Status != nil && !domain.ValidTicketStatus(*input.Status) {
		details = append(details, "Status must be one of: open, in-progress, resolved, closed")
	}
	if input.Priority != nil && !domain.ValidTicketPriority(*input.Priority) {
		details = append(details, "Priority must be one of: low, medium, high, urgent")
	}
	if input.AssignedTo != nil {
		if _, err := uuid.Parse(*input.AssignedTo); err != nil {
			details = append(details, "Assigned user must be a valid user ID")
		}
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError(details)
	}

	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	if !policy.Allows(actor.Role, policy.ActionUpdateStatus, actor.ID, ticket.AssignedTo.ID) {
		return nil, apperrors.NewForbidden("Access denied: You can only update tickets assigned to you")
	}
	if input.Priority != nil && !policy.Allows(actor.Role, policy.ActionUpdatePriority, actor.ID, ticket.AssignedTo.ID) {
		return nil, apperrors.NewForbidden("Access denied: Only admins can change priority")
	}
	if input.AssignedTo != nil && !policy.Allows(actor.Role, policy.ActionReassign, actor.ID, ticket.AssignedTo.ID) {
		return nil, apperrors.NewForbidden("Access denied: Only admins can reassign tickets")
	}

	oldStatus := ticket.Status
	oldPriority := ticket.Priority
	oldAssignee := ticket.AssignedTo

	if input.AssignedTo != nil {
		target, err := s.users.GetByID(ctx, *input.AssignedTo)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, apperrors.NewInvalidReference("Invalid assigned user")
			}
			return nil, apperrors.MapError(err)
		}
		if target.Role != domain.RoleAgent {
			return nil, apperrors.NewInvalidReference("Invalid assigned user")
		}
		ticket.AssignedTo = target.Ref()
	}
	if input.Priority != nil {
		ticket.Priority = *input.Priority
	}
	if input.Status != nil {
		applyStatus(ticket, *input.Status, time.Now())
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if input.Status != nil && ticket.Status != oldStatus {
		s.publish(ctx, actor, events.EventTicketStatusChanged, ticket.ID, events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		})
	}
	if input.Priority != nil && ticket.Priority != oldPriority {
		s.publish(ctx, actor, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: ticket.Priority,
		})
	}
	if input.AssignedTo != nil && ticket.AssignedTo.ID != oldAssignee.ID {
		s.publish(ctx, actor, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
			OldAssigneeID: oldAssignee.ID,
			NewAssigneeID: ticket.AssignedTo.ID,
		})
	}
	s.invalidateStats(ctx, oldAssignee.ID, ticket.AssignedTo.ID)

	return ticket, nil
}

// DeleteTicket hard-deletes a ticket. Admin only.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, id string) error {
	if !policy.Allows(actor.Role, policy.ActionDelete, actor.ID, "") {
		return apperrors.NewForbidden("Access denied: Only admins can delete tickets")
	}
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, actor, events.EventTicketDeleted, ticket.ID, nil)
	s.invalidateStats(ctx, ticket.AssignedTo.ID)
	return nil
}

// Stats returns the ticket overview, scoped to own assignments for agents.
// Results are cached in redis for a short window.
func (s *TicketService) Stats(ctx context.Context, actor *domain.User) (*domain.TicketStats, error) {
	var assigneeID *string
	cacheKey := "tickets:stats:all"
	if policy.ScopeFor(actor.Role, policy.ActionStats) == policy.ScopeAssigned {
		id := actor.ID
		assigneeID = &id
		cacheKey = "tickets:stats:agent:" + id
	}

	if cached := s.cachedStats(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	stats, err := s.tickets.Stats(ctx, assigneeID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.storeStats(ctx, cacheKey, stats)
	return stats, nil
}

func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewInvalidID("ticket")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) pickRandomAgent(ctx context.Context) (*domain.User, error) {
	agents, err := s.users.ListByRole(ctx, domain.RoleAgent)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(agents) == 0 {
		return nil, apperrors.NewNoAgentsAvailable()
	}
	s.mu.Lock()
	idx := s.rng.Intn(len(agents))
	s.mu.Unlock()
	return &agents[idx], nil
}

// applyStatus writes the new status while maintaining the resolvedAt
// invariant: set on entering resolved, cleared for any other status.
// Idempotent under repeated identical updates.
func applyStatus(ticket *domain.Ticket, status domain.TicketStatus, now time.Time) {
	ticket.Status = status
	if status == domain.TicketStatusResolved {
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
	} else {
		ticket.ResolvedAt = nil
	}
}

func buildFilter(actor *domain.User, query ListQuery) (repository.TicketFilter, error) {
	var filter repository.TicketFilter
	var details []string

	if query.Status != "" {
		status := domain.TicketStatus(query.Status)
		if !domain.ValidTicketStatus(status) {
			details = append(details, "Status must be one of: open, in-progress, resolved, closed")
		} else {
			filter.Status = &status
		}
	}
	if query.Category != "" {
		category := domain.TicketCategory(query.Category)
		if !domain.ValidTicketCategory(category) {
			details = append(details, "Category must be one of: technical, billing, general, feature-request, bug-report")
		} else {
			filter.Category = &category
		}
	}
	if query.Priority != "" {
		priority := domain.TicketPriority(query.Priority)
		if !domain.ValidTicketPriority(priority) {
			details = append(details, "Priority must be one of: low, medium, high, urgent")
		} else {
			filter.Priority = &priority
		}
	}

	switch policy.ScopeFor(actor.Role, policy.ActionList) {
	case policy.ScopeAssigned:
		// Caller-supplied assignedTo is discarded: agents only ever see
		// their own assignments.
		id := actor.ID
		filter.AssigneeID = &id
	case policy.ScopeAll:
		if query.AssignedTo != "" {
			if _, err := uuid.Parse(query.AssignedTo); err != nil {
				details = append(details, "assignedTo must be a valid user ID")
			} else {
				id := query.AssignedTo
				filter.AssigneeID = &id
			}
		}
	}

	if len(details) > 0 {
		return repository.TicketFilter{}, apperrors.NewValidationError(details)
	}
	return filter, nil
}

func (s *TicketService) cachedStats(ctx context.Context, key string) *domain.TicketStats {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	body, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var stats domain.TicketStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *TicketService) storeStats(ctx context.Context, key string, stats *domain.TicketStats) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	body, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, body, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("failed to cache stats", zap.Error(err))
	}
}

func (s *TicketService) invalidateStats(ctx context.Context, assigneeIDs ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{"tickets:stats:all"}
	seen := map[string]bool{}
	for _, id := range assigneeIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, "tickets:stats:agent:"+id)
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, actor *domain.User, eventType events.EventType, ticketID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
