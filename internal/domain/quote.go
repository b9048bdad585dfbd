package domain

import "time"

// InsuranceType identifies the product a quote is requested for.
type InsuranceType string

const (
	InsuranceTraffic        InsuranceType = "traffic"
	InsuranceCasco          InsuranceType = "casco"
	InsuranceHome           InsuranceType = "home"
	InsuranceEarthquakePool InsuranceType = "earthquake_pool"
	InsuranceFire           InsuranceType = "fire"
	InsuranceFreight        InsuranceType = "freight"
)

// QuoteStatus is the staff-owned axis of a quote's state.
type QuoteStatus string

const (
	QuotePending   QuoteStatus = "pending"
	QuoteResponded QuoteStatus = "responded"
	QuoteRejected  QuoteStatus = "rejected"
)

// CustomerStatus is the customer-owned axis. It is independent from
// QuoteStatus; both may be set on the same record. The state shown to
// people is always derived from the combination (see EvaluateStatus),
// never stored.
type CustomerStatus string

const (
	CustomerCardSubmitted CustomerStatus = "card_submitted"
	CustomerRejected      CustomerStatus = "rejected"
)

// PaymentInfo is the card data a customer submits when accepting a quote.
// The full card number is kept operator-visible on purpose; the back office
// charges it manually. This mirrors the product requirement, it is not a
// storage recommendation.
type PaymentInfo struct {
	CardNumberMasked  string    `json:"card_number_masked" dynamodbav:"card_number_masked"`
	CardNumber        string    `json:"card_number" dynamodbav:"card_number"`
	CardHolder        string    `json:"card_holder" dynamodbav:"card_holder"`
	Expiry            string    `json:"expiry" dynamodbav:"expiry"`
	CVV               string    `json:"cvv" dynamodbav:"cvv"`
	InstallmentCount  int       `json:"installment_count" dynamodbav:"installment_count"`
	InstallmentAmount string    `json:"installment_amount" dynamodbav:"installment_amount"`
	TotalAmount       string    `json:"total_amount" dynamodbav:"total_amount"`
	SubmittedAt       time.Time `json:"submitted_at" dynamodbav:"submitted_at"`
}

type Quote struct {
	QuoteID       string        `json:"id" dynamodbav:"quote_id"`
	UserID        string        `json:"user_id" dynamodbav:"user_id"` // empty for guest (phone-only) quotes
	InsuranceType InsuranceType `json:"insurance_type" dynamodbav:"insurance_type"`

	FullName        string  `json:"full_name" dynamodbav:"full_name"`
	Phone           string  `json:"phone" dynamodbav:"phone"`
	NationalID      *string `json:"national_id,omitempty" dynamodbav:"national_id"`
	VehiclePlate    *string `json:"vehicle_plate,omitempty" dynamodbav:"vehicle_plate"`
	PropertyAddress *string `json:"property_address,omitempty" dynamodbav:"property_address"`

	Status         QuoteStatus     `json:"status" dynamodbav:"status"`
	CustomerStatus *CustomerStatus `json:"customer_status,omitempty" dynamodbav:"customer_status"`

	Price           *string `json:"price,omitempty" dynamodbav:"price"` // decimal string, e.g. "1200.00"
	MaxInstallments *int    `json:"max_installments,omitempty" dynamodbav:"max_installments"`
	AdminResponse   *string `json:"admin_response,omitempty" dynamodbav:"admin_response"`
	AdminNotes      *string `json:"admin_notes,omitempty" dynamodbav:"admin_notes"`

	RejectionReason         *string `json:"rejection_reason,omitempty" dynamodbav:"rejection_reason"`
	CustomerRejectionReason *string `json:"customer_rejection_reason,omitempty" dynamodbav:"customer_rejection_reason"`

	DocumentURL  *string `json:"document_url,omitempty" dynamodbav:"document_url"`
	DocumentName *string `json:"document_name,omitempty" dynamodbav:"document_name"`

	AwaitingProcessing bool         `json:"awaiting_processing" dynamodbav:"awaiting_processing"`
	PaymentInfo        *PaymentInfo `json:"payment_info,omitempty" dynamodbav:"payment_info"`

	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateQuoteRequest struct {
	InsuranceType   string  `json:"insurance_type" validate:"required,oneof=traffic casco home earthquake_pool fire freight"`
	FullName        string  `json:"full_name" validate:"required"`
	Phone           string  `json:"phone" validate:"required"`
	NationalID      *string `json:"national_id"`
	VehiclePlate    *string `json:"vehicle_plate"`
	PropertyAddress *string `json:"property_address"`
}

type RespondQuoteRequest struct {
	Price           string  `json:"price" validate:"required"`
	AdminResponse   string  `json:"admin_response" validate:"required"`
	MaxInstallments *int    `json:"max_installments" validate:"omitempty,min=1"`
	AdminNotes      *string `json:"admin_notes"`
}

type RejectQuoteRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type PaymentRequest struct {
	CardNumber       string `json:"card_number" validate:"required,min=12,max=19"`
	CardHolder       string `json:"card_holder" validate:"required"`
	Expiry           string `json:"expiry" validate:"required"`
	CVV              string `json:"cvv" validate:"required,min=3,max=4"`
	InstallmentCount int    `json:"installment_count" validate:"required,min=1"`
}
