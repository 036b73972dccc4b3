package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Consultation record statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusScheduled           = "scheduled"
)

// Confirmation statuses.
const (
	ConfirmationPending   = "pending"
	ConfirmationConfirmed = "confirmed"
)

// Phone provenance values.
const (
	PhoneSourceExtractedFromCall  = "extracted_from_call"
	PhoneSourceProvidedByCustomer = "provided_by_customer"
)

// ConsultationTypePhoneOnly marks a consultation booked entirely over the phone.
const ConsultationTypePhoneOnly = "phone_only"

// PhoneUnknown is the sentinel the conversation layer sends when the caller
// never stated a number. It must never reach storage.
const PhoneUnknown = "unknown"

// CallerPhoneExtractionFailed is the sentinel stored on a session when no
// participant exposed a usable phone number. Downstream code branches on it
// instead of a nil check.
const CallerPhoneExtractionFailed = "extraction_failed"

// Consultation is the single flat booking record persisted per call.
type Consultation struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Phone              string             `bson:"phone" json:"phone"`
	CallerPhone        string             `bson:"caller_phone,omitempty" json:"caller_phone,omitempty"`
	ClosetType         string             `bson:"closet_type,omitempty" json:"closet_type,omitempty"`
	NumberOfSpaces     int                `bson:"number_of_spaces,omitempty" json:"number_of_spaces,omitempty"`
	Name               string             `bson:"name,omitempty" json:"name,omitempty"`
	Address            string             `bson:"address,omitempty" json:"address,omitempty"`
	ZipCode            string             `bson:"zip_code,omitempty" json:"zip_code,omitempty"`
	PreferredDate      string             `bson:"preferred_date,omitempty" json:"preferred_date,omitempty"`
	PreferredTime      string             `bson:"preferred_time,omitempty" json:"preferred_time,omitempty"`
	Status             string             `bson:"status" json:"status"`
	ConfirmationStatus string             `bson:"confirmation_status" json:"confirmation_status"`
	ConsultationType   string             `bson:"consultation_type" json:"consultation_type"`
	PhoneSource        string             `bson:"phone_source" json:"phone_source"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	ConfirmedAt        *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
}

// BookingRequest carries the caller-provided fields from the conversation layer.
// Any field may be empty; the scheduler fills in identity and normalizes dates.
type BookingRequest struct {
	ClosetType     string
	NumberOfSpaces int
	Phone          string
	Name           string
	Address        string
	ZipCode        string
	PreferredDate  string
	PreferredTime  string
}
