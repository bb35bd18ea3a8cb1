// AngelaMos | 2026
// dto.go

package entitlements

import (
	"github.com/carterperez-dev/templates/access-control/internal/access"
)

type CheckRequest struct {
	Feature  string         `json:"feature"  validate:"required_without=Resource,excluded_with=Resource"`
	Resource string         `json:"resource"`
	Action   string         `json:"action"   validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

type TrackUsageRequest struct {
	Feature  string         `json:"feature"  validate:"required"`
	Action   string         `json:"action"   validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

type FeaturesResponse struct {
	Tier     access.Tier      `json:"tier"`
	Features []access.Feature `json:"features"`
}

type UsageResponse struct {
	Tier   access.Tier         `json:"tier"`
	Meters []access.UsageMeter `json:"meters"`
}

type LimitResponse struct {
	LimitType access.LimitType    `json:"limitType"`
	Limit     int64               `json:"limit"`
	Current   int64               `json:"current"`
	Unlimited bool                `json:"unlimited"`
	Result    access.AccessResult `json:"result"`
}

// UpgradePrompt is what the UI shows in place of gated content.
type UpgradePrompt struct {
	Tier     access.Tier `json:"tier"`
	Benefits []string    `json:"benefits"`
	URL      string      `json:"url"`
}

// GateResponse tells the UI whether to render gated content, and if not,
// what to show instead.
type GateResponse struct {
	Render  bool                `json:"render"`
	Result  access.AccessResult `json:"result"`
	Upgrade *UpgradePrompt      `json:"upgrade,omitempty"`
}
