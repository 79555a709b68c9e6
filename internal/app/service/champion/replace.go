package champion

import (
	"time"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/types"
)

// Transition describes one subscription replace: the membership before and
// after, and how the change is classified in the payment history.
type Transition struct {
	Type   types.SubscriptionType
	Before *models.MembershipSnapshot
	After  *models.MembershipSnapshot
}

// Replace classifies swapping prev (may be nil or expired) for next at now.
func Replace(prev, next *models.ChampionSubscription, now time.Time) Transition {
	t := Transition{After: next.Snapshot()}
	if prev != nil {
		t.Before = prev.Snapshot()
		t.Before.IsActive = prev.Current(now)
	}
	switch {
	case prev == nil || !prev.Current(now):
		t.Type = types.SubscriptionTypeNew
	case next.TierLevel > prev.TierLevel:
		t.Type = types.SubscriptionTypeUpgrade
	case next.TierLevel < prev.TierLevel:
		t.Type = types.SubscriptionTypeDowngrade
	default:
		t.Type = types.SubscriptionTypeRenew
	}
	return t
}
