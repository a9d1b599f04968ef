package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/triage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

func newTestTicketService(tickets *fakeTicketRepo, users *fakeUserRepo, cat triage.Categorizer) *TicketService {
	if cat == nil {
		cat = stubCategorizer{result: triage.Result{
			Category:   domain.CategoryGeneral,
			Priority:   domain.TicketPriorityMedium,
			Confidence: 0.7,
		}}
	}
	return NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		UserRepo:    users,
		Categorizer: cat,
		Rand:        rand.New(rand.NewSource(1)),
		Logger:      zap.NewNop(),
	})
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %T: %v", err, err)
	}
	return domainErr.Code
}

func seedTicket(t *testing.T, repo *fakeTicketRepo, creator, assignee *domain.User, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Title:       "Seeded ticket",
		Description: "seeded for testing purposes",
		Status:      status,
		Priority:    domain.TicketPriorityMedium,
		Category:    domain.CategoryGeneral,
		CreatedBy:   creator.Ref(),
		AssignedTo:  assignee.Ref(),
		Attachments: []string{},
	}
	if err := repo.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func TestCreateTicketUsesSuggestedPriority(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	tickets := &fakeTicketRepo{}
	svc := newTestTicketService(tickets, users, stubCategorizer{result: triage.Result{
		Category:   domain.CategoryBugReport,
		Priority:   domain.TicketPriorityHigh,
		Confidence: 0.9,
	}})

	ticket, analysis, err := svc.CreateTicket(context.Background(), agent, CreateTicketInput{
		Title:       "Checkout page broken",
		Description: "customers get an error on payment",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %q, want open", ticket.Status)
	}
	if ticket.Category != domain.CategoryBugReport {
		t.Errorf("category = %q, want bug-report", ticket.Category)
	}
	if ticket.Priority != domain.TicketPriorityHigh {
		t.Errorf("priority = %q, want suggested high", ticket.Priority)
	}
	if ticket.AssignedTo.ID != agent.ID {
		t.Errorf("assignedTo = %q, want the only agent %q", ticket.AssignedTo.ID, agent.ID)
	}
	if ticket.Attachments == nil {
		t.Error("attachments should default to an empty slice")
	}
	if analysis == nil || analysis.Confidence != 0.9 {
		t.Errorf("analysis = %+v, want confidence 0.9", analysis)
	}
}

func TestCreateTicketPriorityOverride(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	svc := newTestTicketService(&fakeTicketRepo{}, users, stubCategorizer{result: triage.Result{
		Category:   domain.CategoryGeneral,
		Priority:   domain.TicketPriorityMedium,
		Confidence: 0.7,
	}})

	low := domain.TicketPriorityLow
	ticket, analysis, err := svc.CreateTicket(context.Background(), agent, CreateTicketInput{
		Title:       "Minor cosmetic issue",
		Description: "a label is slightly misaligned",
		Priority:    &low,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Priority != domain.TicketPriorityLow {
		t.Errorf("priority = %q, want explicit low", ticket.Priority)
	}
	// The suggestion is reported back even when overridden.
	if analysis.Priority != domain.TicketPriorityMedium {
		t.Errorf("suggested priority = %q, want medium", analysis.Priority)
	}
}

func TestCreateTicketNoAgents(t *testing.T) {
	users := &fakeUserRepo{}
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	svc := newTestTicketService(&fakeTicketRepo{}, users, nil)

	_, _, err := svc.CreateTicket(context.Background(), admin, CreateTicketInput{
		Title:       "Valid enough title",
		Description: "valid enough description",
	})
	if code := errCode(t, err); code != "NO_AGENTS_AVAILABLE" {
		t.Errorf("code = %q, want NO_AGENTS_AVAILABLE", code)
	}
}

func TestCreateTicketCollectsValidationErrors(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	svc := newTestTicketService(&fakeTicketRepo{}, users, nil)

	bad := domain.TicketPriority("critical")
	_, _, err := svc.CreateTicket(context.Background(), agent, CreateTicketInput{
		Title:       "abc",
		Description: "short",
		Priority:    &bad,
	})

	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_FAILED" {
		t.Errorf("code = %q, want VALIDATION_FAILED", domainErr.Code)
	}
	if len(domainErr.Details) != 3 {
		t.Errorf("details = %v, want all 3 failures collected", domainErr.Details)
	}
}

func TestListTicketsAgentScopeForced(t *testing.T) {
	users := &fakeUserRepo{}
	agentA := users.add("Agent A", "a@example.com", domain.RoleAgent)
	agentB := users.add("Agent B", "b@example.com", domain.RoleAgent)
	tickets := &fakeTicketRepo{}
	seedTicket(t, tickets, agentA, agentA, domain.TicketStatusOpen)
	seedTicket(t, tickets, agentA, agentB, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)

	// Agent A asks for agent B's tickets; the filter must be overridden.
	list, pagination, err := svc.ListTickets(context.Background(), agentA, ListQuery{AssignedTo: agentB.ID})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if pagination.TotalTickets != 1 {
		t.Fatalf("total = %d, want 1", pagination.TotalTickets)
	}
	if list[0].AssignedTo.ID != agentA.ID {
		t.Errorf("listed ticket assigned to %q, want requester %q", list[0].AssignedTo.ID, agentA.ID)
	}
}

func TestListTicketsPagination(t *testing.T) {
	users := &fakeUserRepo{}
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	tickets := &fakeTicketRepo{}
	for i := 0; i < 3; i++ {
		seedTicket(t, tickets, agent, agent, domain.TicketStatusOpen)
	}
	svc := newTestTicketService(tickets, users, nil)

	list, pagination, err := svc.ListTickets(context.Background(), admin, ListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(list) != 2 || pagination.TotalPages != 2 || !pagination.HasNextPage || pagination.HasPrevPage {
		t.Errorf("page 1: len=%d pagination=%+v", len(list), pagination)
	}

	list, pagination, err = svc.ListTickets(context.Background(), admin, ListQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListTickets page 2: %v", err)
	}
	if len(list) != 1 || pagination.HasNextPage || !pagination.HasPrevPage {
		t.Errorf("page 2: len=%d pagination=%+v", len(list), pagination)
	}
}

func TestListTicketsClampsPageAndLimit(t *testing.T) {
	users := &fakeUserRepo{}
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	tickets := &fakeTicketRepo{}
	svc := newTestTicketService(tickets, users, nil)

	_, pagination, err := svc.ListTickets(context.Background(), admin, ListQuery{Page: 0, Limit: 1000})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if pagination.CurrentPage != 1 {
		t.Errorf("currentPage = %d, want clamped to 1", pagination.CurrentPage)
	}
	// The oversized limit must have been reduced to the cap.
	for i := 0; i < 60; i++ {
		agent := users.add("Agent", uuid.NewString()+"@example.com", domain.RoleAgent)
		seedTicket(t, tickets, agent, agent, domain.TicketStatusOpen)
	}
	list, pagination, err := svc.ListTickets(context.Background(), admin, ListQuery{Limit: 1000})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(list) != 50 {
		t.Errorf("len = %d, want capped at 50", len(list))
	}
	if pagination.TotalPages != 2 {
		t.Errorf("totalPages = %d, want 2", pagination.TotalPages)
	}
}

func TestListTicketsInvalidFilters(t *testing.T) {
	users := &fakeUserRepo{}
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	svc := newTestTicketService(&fakeTicketRepo{}, users, nil)

	_, _, err := svc.ListTickets(context.Background(), admin, ListQuery{Status: "pending", AssignedTo: "not-a-uuid"})
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if len(domainErr.Details) != 2 {
		t.Errorf("details = %v, want both filter failures collected", domainErr.Details)
	}
}

func TestGetTicket(t *testing.T) {
	users := &fakeUserRepo{}
	agentA := users.add("Agent A", "a@example.com", domain.RoleAgent)
	agentB := users.add("Agent B", "b@example.com", domain.RoleAgent)
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	tickets := &fakeTicketRepo{}
	ticket := seedTicket(t, tickets, agentA, agentA, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	if _, err := svc.GetTicket(ctx, agentA, "not-a-uuid"); errCode(t, err) != "INVALID_ID" {
		t.Error("malformed id should yield INVALID_ID")
	}
	if _, err := svc.GetTicket(ctx, agentA, uuid.NewString()); errCode(t, err) != "NOT_FOUND" {
		t.Error("unknown id should yield NOT_FOUND")
	}
	if _, err := svc.GetTicket(ctx, agentB, ticket.ID); errCode(t, err) != "FORBIDDEN" {
		t.Error("other agent should be FORBIDDEN")
	}
	got, err := svc.GetTicket(ctx, agentA, ticket.ID)
	if err != nil || got.ID != ticket.ID {
		t.Errorf("assignee get = %v, %v", got, err)
	}
	if _, err := svc.GetTicket(ctx, admin, ticket.ID); err != nil {
		t.Errorf("admin get: %v", err)
	}
}

func TestUpdateTicketResolvedAtLifecycle(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	tickets := &fakeTicketRepo{}
	ticket := seedTicket(t, tickets, agent, agent, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	resolved := domain.TicketStatusResolved
	updated, err := svc.UpdateTicket(ctx, agent, ticket.ID, UpdateTicketInput{Status: &resolved})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if updated.ResolvedAt == nil {
		t.Fatal("resolvedAt not set on resolve")
	}

	open := domain.TicketStatusOpen
	updated, err = svc.UpdateTicket(ctx, agent, ticket.ID, UpdateTicketInput{Status: &open})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if updated.ResolvedAt != nil {
		t.Error("resolvedAt not cleared on reopen")
	}
}

func TestUpdateTicketPolicyDenials(t *testing.T) {
	users := &fakeUserRepo{}
	agentA := users.add("Agent A", "a@example.com", domain.RoleAgent)
	agentB := users.add("Agent B", "b@example.com", domain.RoleAgent)
	tickets := &fakeTicketRepo{}
	ticket := seedTicket(t, tickets, agentA, agentA, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	inProgress := domain.TicketStatusInProgress
	if _, err := svc.UpdateTicket(ctx, agentB, ticket.ID, UpdateTicketInput{Status: &inProgress}); errCode(t, err) != "FORBIDDEN" {
		t.Error("other agent's status update should be FORBIDDEN")
	}

	high := domain.TicketPriorityHigh
	if _, err := svc.UpdateTicket(ctx, agentA, ticket.ID, UpdateTicketInput{Priority: &high}); errCode(t, err) != "FORBIDDEN" {
		t.Error("agent priority change should be FORBIDDEN even on own ticket")
	}

	target := agentB.ID
	if _, err := svc.UpdateTicket(ctx, agentA, ticket.ID, UpdateTicketInput{AssignedTo: &target}); errCode(t, err) != "FORBIDDEN" {
		t.Error("agent reassign should be FORBIDDEN even on own ticket")
	}

	// The denied fields must not have been silently applied.
	current, _ := tickets.GetByID(ctx, ticket.ID)
	if current.Priority != domain.TicketPriorityMedium || current.AssignedTo.ID != agentA.ID {
		t.Errorf("denied update leaked through: %+v", current)
	}
}

func TestUpdateTicketReassignment(t *testing.T) {
	users := &fakeUserRepo{}
	agentA := users.add("Agent A", "a@example.com", domain.RoleAgent)
	agentB := users.add("Agent B", "b@example.com", domain.RoleAgent)
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	tickets := &fakeTicketRepo{}
	ticket := seedTicket(t, tickets, agentA, agentA, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	missing := uuid.NewString()
	if _, err := svc.UpdateTicket(ctx, admin, ticket.ID, UpdateTicketInput{AssignedTo: &missing}); errCode(t, err) != "INVALID_REFERENCE" {
		t.Error("reassign to unknown user should be INVALID_REFERENCE")
	}

	adminID := admin.ID
	if _, err := svc.UpdateTicket(ctx, admin, ticket.ID, UpdateTicketInput{AssignedTo: &adminID}); errCode(t, err) != "INVALID_REFERENCE" {
		t.Error("reassign to a non-agent should be INVALID_REFERENCE")
	}

	notUUID := "agent-b"
	if _, err := svc.UpdateTicket(ctx, admin, ticket.ID, UpdateTicketInput{AssignedTo: &notUUID}); errCode(t, err) != "VALIDATION_FAILED" {
		t.Error("malformed assignee id should be VALIDATION_FAILED")
	}

	targetID := agentB.ID
	updated, err := svc.UpdateTicket(ctx, admin, ticket.ID, UpdateTicketInput{AssignedTo: &targetID})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if updated.AssignedTo.ID != agentB.ID || updated.AssignedTo.Email != agentB.Email {
		t.Errorf("assignedTo = %+v, want agent B ref", updated.AssignedTo)
	}
}

func TestUpdateTicketInvalidEnums(t *testing.T) {
	users := &fakeUserRepo{}
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	svc := newTestTicketService(&fakeTicketRepo{}, users, nil)

	bogus := domain.TicketStatus("pending")
	_, err := svc.UpdateTicket(context.Background(), admin, uuid.NewString(), UpdateTicketInput{Status: &bogus})
	// Validation runs before the ticket lookup.
	if errCode(t, err) != "VALIDATION_FAILED" {
		t.Error("invalid status enum should be VALIDATION_FAILED")
	}
}

func TestDeleteTicket(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	tickets := &fakeTicketRepo{}
	ticket := seedTicket(t, tickets, agent, agent, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	// Policy is checked before the id is even parsed.
	if err := svc.DeleteTicket(ctx, agent, "not-a-uuid"); errCode(t, err) != "FORBIDDEN" {
		t.Error("agent delete should be FORBIDDEN")
	}
	if err := svc.DeleteTicket(ctx, admin, "not-a-uuid"); errCode(t, err) != "INVALID_ID" {
		t.Error("admin delete with malformed id should be INVALID_ID")
	}
	if err := svc.DeleteTicket(ctx, admin, uuid.NewString()); errCode(t, err) != "NOT_FOUND" {
		t.Error("admin delete of unknown ticket should be NOT_FOUND")
	}
	if err := svc.DeleteTicket(ctx, admin, ticket.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tickets.GetByID(ctx, ticket.ID); err == nil {
		t.Error("ticket still present after delete")
	}
}

func TestStatsScoping(t *testing.T) {
	users := &fakeUserRepo{}
	agent := users.add("Agent", "agent@example.com", domain.RoleAgent)
	admin := users.add("Admin", "admin@example.com", domain.RoleAdmin)
	tickets := &fakeTicketRepo{}
	seedTicket(t, tickets, agent, agent, domain.TicketStatusOpen)
	svc := newTestTicketService(tickets, users, nil)
	ctx := context.Background()

	if _, err := svc.Stats(ctx, admin); err != nil {
		t.Fatalf("admin stats: %v", err)
	}
	if tickets.lastStatsScope != nil {
		t.Errorf("admin stats scope = %v, want unscoped", *tickets.lastStatsScope)
	}

	stats, err := svc.Stats(ctx, agent)
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if tickets.lastStatsScope == nil || *tickets.lastStatsScope != agent.ID {
		t.Errorf("agent stats scope = %v, want %q", tickets.lastStatsScope, agent.ID)
	}
	if stats.Total != 1 || stats.Open != 1 {
		t.Errorf("stats = %+v, want total=1 open=1", stats)
	}
}
