package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketCategory enumerates triage categories.
type TicketCategory string

const (
	CategoryTechnical      TicketCategory = "technical"
	CategoryBilling        TicketCategory = "billing"
	CategoryGeneral        TicketCategory = "general"
	CategoryFeatureRequest TicketCategory = "feature-request"
	CategoryBugReport      TicketCategory = "bug-report"
)

// ValidTicketStatus reports whether the value is a known status.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// ValidTicketPriority reports whether the value is a known priority.
func ValidTicketPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ValidTicketCategory reports whether the value is a known category.
func ValidTicketCategory(c TicketCategory) bool {
	switch c {
	case CategoryTechnical, CategoryBilling, CategoryGeneral, CategoryFeatureRequest, CategoryBugReport:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// ResolvedAt is non-nil exactly while Status is resolved; every status
// write maintains that invariant.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Priority    TicketPriority
	Category    TicketCategory
	Status      TicketStatus
	CreatedBy   UserRef
	AssignedTo  UserRef
	Attachments []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// TicketStats aggregates counts for the dashboard.
type TicketStats struct {
	Total      int
	Open       int
	InProgress int
	Resolved   int
	Closed     int
	ByPriority map[TicketPriority]int
	ByCategory map[TicketCategory]int
}
