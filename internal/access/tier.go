// AngelaMos | 2026
// tier.go

package access

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Tiers form a total order by Rank.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

var tierOrder = []Tier{TierBasic, TierProfessional, TierEnterprise}

// Tiers returns every tier in ascending rank order.
func Tiers() []Tier {
	out := make([]Tier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// Rank returns the position of the tier in the ordering, or -1 when unknown.
func (t Tier) Rank() int {
	for i, candidate := range tierOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

func (t Tier) String() string {
	return string(t)
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// HasTierAccess reports whether user ranks at or above required.
// Unknown tiers never have access and never grant it.
func HasTierAccess(user, required Tier) bool {
	userRank, requiredRank := user.Rank(), required.Rank()
	if userRank < 0 || requiredRank < 0 {
		return false
	}
	return userRank >= requiredRank
}

// tiersAbove returns the tiers ranked strictly above t in ascending order.
// An unknown tier sits below every known tier.
func tiersAbove(t Tier) []Tier {
	return tierOrder[t.Rank()+1:]
}
