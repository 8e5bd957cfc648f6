package orders

import (
	"context"
	"time"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// DeliveryRuleName is the job name of the automatic delivery confirmation
const DeliveryRuleName = "order_auto_delivery"

// DeliveryRule confirms delivery of orders that have been shipped for longer than
// maxAge. Cash-on-delivery orders are marked paid in the same update.
func DeliveryRule(maxAge time.Duration) reconcile.Rule {
	return reconcile.Rule{
		Name:         DeliveryRuleName,
		SourceStates: []reconcile.State{StatusShipped},
		MaxAge:       maxAge,
		TargetState:  StatusDelivered,
		Terminal:     true,
		Augment:      reconcile.AugmenterFunc(settleDelivery),
	}
}

func settleDelivery(ctx context.Context, e reconcile.Entity, at time.Time) (reconcile.Fields, error) {
	policy := PolicyFor(e.Meta[MetaPaymentMethod])
	fields := reconcile.Fields{"delivered_at": at}
	return fields.Merge(policy.Settle(e, at)), nil
}
