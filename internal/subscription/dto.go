// AngelaMos | 2026
// dto.go

package subscription

import (
	"time"

	"github.com/carterperez-dev/templates/access-control/internal/access"
)

type SetSubscriptionRequest struct {
	Tier             string     `json:"tier"             validate:"required,oneof=basic professional enterprise"`
	Status           string     `json:"status"           validate:"required,oneof=active trialing past_due canceled"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
}

type SubscriptionResponse struct {
	UserID           string      `json:"userId"`
	Tier             access.Tier `json:"tier"`
	Status           Status      `json:"status"`
	Active           bool        `json:"active"`
	CurrentPeriodEnd *time.Time  `json:"currentPeriodEnd,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type EventResponse struct {
	FromTier  *access.Tier `json:"fromTier,omitempty"`
	ToTier    access.Tier  `json:"toTier"`
	Status    Status       `json:"status"`
	ChangedBy string       `json:"changedBy"`
	ChangedAt time.Time    `json:"changedAt"`
}

type ListParams struct {
	Page     int
	PageSize int
	Tier     string
	Status   string
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToSubscriptionResponse(s *Subscription, now time.Time) SubscriptionResponse {
	return SubscriptionResponse{
		UserID:           s.UserID,
		Tier:             s.Tier,
		Status:           s.Status,
		Active:           s.IsActive(now),
		CurrentPeriodEnd: s.CurrentPeriodEnd,
		UpdatedAt:        s.UpdatedAt,
	}
}

func ToSubscriptionResponseList(subs []Subscription, now time.Time) []SubscriptionResponse {
	responses := make([]SubscriptionResponse, 0, len(subs))
	for i := range subs {
		responses = append(responses, ToSubscriptionResponse(&subs[i], now))
	}
	return responses
}

func ToEventResponseList(events []Event) []EventResponse {
	responses := make([]EventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, EventResponse{
			FromTier:  e.FromTier,
			ToTier:    e.ToTier,
			Status:    e.Status,
			ChangedBy: e.ChangedBy,
			ChangedAt: e.ChangedAt,
		})
	}
	return responses
}
