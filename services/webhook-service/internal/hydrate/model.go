package hydrate

import (
	"encoding/json"
	"time"
)

// Ref is a document reference that may be encoded as a bare id string or as an
// embedded object carrying "_id" (orders embed buyers, carts list customer ids).
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref(id)
		return nil
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Ref(obj.ID)
	return nil
}

type FinancialStatus struct {
	Current string `json:"current"`
}

type Amount struct {
	Total *float64 `json:"total"`
}

type PaymentMethod struct {
	Code string `json:"code"`
}

type Transaction struct {
	PaymentMethod *PaymentMethod `json:"payment_method"`
}

type Order struct {
	ID               string            `json:"_id"`
	FinancialStatus  *FinancialStatus  `json:"financial_status"`
	Items            []json.RawMessage `json:"items"`
	Transactions     []Transaction     `json:"transactions"`
	Amount           *Amount           `json:"amount"`
	AcceptsMarketing bool              `json:"accepts_marketing"`
	Buyers           []Ref             `json:"buyers"`
}

type Cart struct {
	ID        string    `json:"_id"`
	Available bool      `json:"available"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	Customers []Ref     `json:"customers"`
}

type Customer struct {
	ID          string `json:"_id"`
	DisplayName string `json:"display_name"`
	MainEmail   string `json:"main_email"`
}

// Resource is the hydrated document behind a trigger. Exactly one of Order or
// Cart is set; Customer is nil when the document lists no customer.
type Resource struct {
	Kind     string
	Order    *Order
	Cart     *Cart
	Customer *Customer
}

func firstRef(refs []Ref) string {
	for _, ref := range refs {
		if ref != "" {
			return string(ref)
		}
	}
	return ""
}
