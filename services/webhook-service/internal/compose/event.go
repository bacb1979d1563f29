package compose

import "fmt"

const (
	EventTypeOrderPlaced = "ORDER_PLACED"
	EventFamilyCDP       = "CDP"

	PaymentCreditCard = "Credit Card"
	PaymentOthers     = "Others"

	ConsentGranted  = "granted"
	ConsentDeclined = "declined"
)

// Event is the body posted to the destination's event ingestion endpoint.
type Event struct {
	EventType   string `json:"event_type"`
	EventFamily string `json:"event_family"`
	Payload     any    `json:"payload"`
}

type LegalBasis struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Status   string `json:"status"`
}

type OrderPlaced struct {
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	OrderID       string       `json:"cf_order_id"`
	TotalItems    int          `json:"cf_order_total_items"`
	Status        string       `json:"cf_order_status"`
	PaymentMethod string       `json:"cf_order_payment_method"`
	PaymentAmount float64      `json:"cf_order_payment_amount"`
	LegalBases    []LegalBasis `json:"legal_bases"`
}

// FieldError reports a field the event needs but the hydrated document lacks.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("compose: missing required field %s", e.Field)
}
