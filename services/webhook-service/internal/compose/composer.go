package compose

import (
	"strings"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/hydrate"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
)

// Compose maps a hydrated resource to the outbound event. Only orders have a
// mapping; carts and any other kind yield a nil event and no error.
func Compose(res hydrate.Resource) (*Event, error) {
	switch res.Kind {
	case trigger.ResourceOrders:
		if res.Order == nil {
			return nil, &FieldError{Field: "order"}
		}
		return orderPlaced(res.Order, res.Customer)
	default:
		return nil, nil
	}
}

func orderPlaced(order *hydrate.Order, customer *hydrate.Customer) (*Event, error) {
	switch {
	case customer == nil:
		return nil, &FieldError{Field: "customer"}
	case strings.TrimSpace(customer.MainEmail) == "":
		return nil, &FieldError{Field: "customer.main_email"}
	case order.ID == "":
		return nil, &FieldError{Field: "_id"}
	case order.FinancialStatus == nil || order.FinancialStatus.Current == "":
		return nil, &FieldError{Field: "financial_status.current"}
	case order.Amount == nil || order.Amount.Total == nil:
		return nil, &FieldError{Field: "amount.total"}
	}

	return &Event{
		EventType:   EventTypeOrderPlaced,
		EventFamily: EventFamilyCDP,
		Payload: OrderPlaced{
			Name:          customer.DisplayName,
			Email:         customer.MainEmail,
			OrderID:       order.ID,
			TotalItems:    len(order.Items),
			Status:        order.FinancialStatus.Current,
			PaymentMethod: PaymentMethodLabel(order.Transactions),
			PaymentAmount: *order.Amount.Total,
			LegalBases: []LegalBasis{{
				Category: "communications",
				Type:     "consent",
				Status:   ConsentStatus(order.AcceptsMarketing),
			}},
		},
	}, nil
}

// PaymentMethodLabel classifies the first transaction's payment method.
func PaymentMethodLabel(transactions []hydrate.Transaction) string {
	if len(transactions) == 0 || transactions[0].PaymentMethod == nil {
		return PaymentOthers
	}
	if transactions[0].PaymentMethod.Code == "credit_card" {
		return PaymentCreditCard
	}
	return PaymentOthers
}

func ConsentStatus(acceptsMarketing bool) string {
	if acceptsMarketing {
		return ConsentGranted
	}
	return ConsentDeclined
}
