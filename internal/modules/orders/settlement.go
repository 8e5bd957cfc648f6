package orders

import (
	"strings"
	"time"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// PaymentMethodCOD is the payment-method code for cash on delivery
const PaymentMethodCOD = "COD"

// PaymentSettlementPolicy decides what delivering an order means for its payment
type PaymentSettlementPolicy interface {
	Name() string
	Settle(e reconcile.Entity, at time.Time) reconcile.Fields
}

// CashOnDelivery marks the order paid at the moment of delivery
type CashOnDelivery struct{}

// Name returns the policy name
func (CashOnDelivery) Name() string { return "cash_on_delivery" }

// Settle returns the paid flag and timestamp
func (CashOnDelivery) Settle(e reconcile.Entity, at time.Time) reconcile.Fields {
	return reconcile.Fields{
		"is_paid": true,
		"paid_at": at,
	}
}

// Prepaid leaves payment fields untouched; the order was settled at checkout
type Prepaid struct{}

// Name returns the policy name
func (Prepaid) Name() string { return "prepaid" }

// Settle returns no fields
func (Prepaid) Settle(e reconcile.Entity, at time.Time) reconcile.Fields {
	return nil
}

// PolicyFor resolves the settlement policy for a payment-method code
func PolicyFor(method string) PaymentSettlementPolicy {
	if strings.EqualFold(strings.TrimSpace(method), PaymentMethodCOD) {
		return CashOnDelivery{}
	}
	return Prepaid{}
}
