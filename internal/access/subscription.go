// AngelaMos | 2026
// subscription.go

package access

import (
	"math"
	"sync"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

const expiringSoonDays = 7

// SubscriptionState is the derived validity of a tenant subscription.
type SubscriptionState struct {
	IsValid        bool
	DaysRemaining  int
	IsExpiringSoon bool
}

// EvaluateSubscription derives validity at now. A subscription is valid only
// while active and before its end date; an expired one is never "expiring
// soon".
func EvaluateSubscription(
	status SubscriptionStatus,
	endDate time.Time,
	now time.Time,
) SubscriptionState {
	remaining := endDate.Sub(now)

	days := 0
	if remaining > 0 {
		days = int(math.Ceil(remaining.Hours() / 24))
	}

	return SubscriptionState{
		IsValid:        status == SubscriptionActive && now.Before(endDate),
		DaysRemaining:  days,
		IsExpiringSoon: days > 0 && days <= expiringSoonDays,
	}
}

// ExpiryNotifier remembers which subscriptions have already produced an
// "expiring soon" notice so each one is announced once per process.
type ExpiryNotifier struct {
	mu       sync.Mutex
	notified map[string]struct{}
}

func NewExpiryNotifier() *ExpiryNotifier {
	return &ExpiryNotifier{notified: make(map[string]struct{})}
}

// ShouldNotify returns true the first time it sees an expiring-soon state
// for subscriptionID and false afterwards.
func (n *ExpiryNotifier) ShouldNotify(
	subscriptionID string,
	state SubscriptionState,
) bool {
	if subscriptionID == "" || !state.IsExpiringSoon {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, seen := n.notified[subscriptionID]; seen {
		return false
	}
	n.notified[subscriptionID] = struct{}{}
	return true
}
