// AngelaMos | 2026
// entity.go

package subscription

import (
	"time"

	"github.com/carterperez-dev/templates/access-control/internal/access"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

type Subscription struct {
	UserID           string      `db:"user_id"`
	Tier             access.Tier `db:"tier"`
	Status           Status      `db:"status"`
	CurrentPeriodEnd *time.Time  `db:"current_period_end"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// IsActive reports whether the subscription entitles its tier at now. An
// unset period end never lapses.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
}

// Event is one row of subscription change history.
type Event struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	FromTier  *access.Tier `db:"from_tier"`
	ToTier    access.Tier  `db:"to_tier"`
	Status    Status       `db:"status"`
	ChangedBy string       `db:"changed_by"`
	ChangedAt time.Time    `db:"changed_at"`
}
