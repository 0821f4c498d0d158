package dedup

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalmesh/hermes/pkg/types"
)

// DefaultStrategy keys deduplication on the event's own identity. Events
// arriving without an id are passed through undeduplicated.
type DefaultStrategy struct{}

func (DefaultStrategy) Matches(*types.Event) bool { return true }

func (DefaultStrategy) Key(event *types.Event) Key {
	if event.ID == uuid.Nil {
		return Key{}
	}
	return Key{Value: event.ID.String()}
}

// Subscription events fire repeatedly within a billing period; deduplicate
// them once per calendar month on a composite business key instead of per
// event id.
const (
	subscriptionsBundle      = "subscription-services"
	subscriptionsApplication = "subscriptions"
)

type SubscriptionsStrategy struct{}

func (SubscriptionsStrategy) Matches(event *types.Event) bool {
	return event.Bundle == subscriptionsBundle && event.Application == subscriptionsApplication
}

func (SubscriptionsStrategy) Key(event *types.Event) Key {
	productID, _ := event.Context["product_id"].(string)
	metricID, _ := event.Context["metric_id"].(string)
	billingAccountID, _ := event.Context["billing_account_id"].(string)

	month := event.Timestamp.UTC().Format("2006-01")
	value := fmt.Sprintf("subscriptions|%s|%s|%s|%s|%s",
		event.OrgID, productID, metricID, billingAccountID, month)

	// Records expire on the first day of the following month, bounding their
	// lifetime to roughly one billing period.
	year, m, _ := event.Timestamp.UTC().Date()
	deleteAfter := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	return Key{Value: value, DeleteAfter: &deleteAfter}
}
