package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/triage"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
	Attachments []string               `json:"attachments"`
}

// UpdateTicketRequest payload for PATCH. Absent fields stay untouched.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus   `json:"status"`
	Priority   *domain.TicketPriority `json:"priority"`
	AssignedTo *string                `json:"assignedTo"`
}

// TicketResponse is the serialized ticket with populated references.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Category    domain.TicketCategory `json:"category"`
	Status      domain.TicketStatus   `json:"status"`
	CreatedBy   domain.UserRef        `json:"createdBy"`
	AssignedTo  domain.UserRef        `json:"assignedTo"`
	Attachments []string              `json:"attachments"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
	ResolvedAt  *time.Time            `json:"resolvedAt"`
}

// AIAnalysis echoes the triage suggestion alongside a created ticket.
type AIAnalysis struct {
	SuggestedCategory domain.TicketCategory `json:"suggestedCategory"`
	SuggestedPriority domain.TicketPriority `json:"suggestedPriority"`
	Confidence        float64               `json:"confidence"`
}

// CreateTicketData is the data member for POST /tickets.
type CreateTicketData struct {
	Ticket     TicketResponse `json:"ticket"`
	AIAnalysis AIAnalysis     `json:"aiAnalysis"`
}

// TicketListData is the data member for GET /tickets.
type TicketListData struct {
	Tickets    []TicketResponse    `json:"tickets"`
	Pagination *service.Pagination `json:"pagination"`
}

// StatsOverview is the status breakdown in GET /tickets/stats.
type StatsOverview struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

// StatsData is the data member for GET /tickets/stats.
type StatsData struct {
	Overview   StatsOverview                 `json:"overview"`
	ByPriority map[domain.TicketPriority]int `json:"byPriority"`
	ByCategory map[domain.TicketCategory]int `json:"byCategory"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	attachments := ticket.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return TicketResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Priority:    ticket.Priority,
		Category:    ticket.Category,
		Status:      ticket.Status,
		CreatedBy:   ticket.CreatedBy,
		AssignedTo:  ticket.AssignedTo,
		Attachments: attachments,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ResolvedAt:  ticket.ResolvedAt,
	}
}

// NewAIAnalysis maps a triage result.
func NewAIAnalysis(result *triage.Result) AIAnalysis {
	return AIAnalysis{
		SuggestedCategory: result.Category,
		SuggestedPriority: result.Priority,
		Confidence:        result.Confidence,
	}
}

// NewStatsData maps domain stats.
func NewStatsData(stats *domain.TicketStats) StatsData {
	return StatsData{
		Overview: StatsOverview{
			Total:      stats.Total,
			Open:       stats.Open,
			InProgress: stats.InProgress,
			Resolved:   stats.Resolved,
			Closed:     stats.Closed,
		},
		ByPriority: stats.ByPriority,
		ByCategory: stats.ByCategory,
	}
}
