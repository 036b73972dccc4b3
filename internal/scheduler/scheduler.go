// Package scheduler books a consultation for the current call. It enforces
// at-most-one booking per call, resolves the caller identity to persist, and
// hands the session off to termination after the first successful booking.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/upclosets/nova-voice-agent/internal/dates"
	"github.com/upclosets/nova-voice-agent/internal/domain"
	"github.com/upclosets/nova-voice-agent/internal/store"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// Caller-facing responses spoken back by the conversation layer.
const (
	replyConfirmed = "Consultation scheduled successfully! Your free consultation appointment " +
		"has been confirmed and saved to our system. Lakshmi will contact you shortly " +
		"to confirm the details. Thank you for choosing Up Closets of NOVA!"
	replyAlreadyBooked = "I'm sorry, but I can only schedule one consultation per call. " +
		"Your previous appointment has already been confirmed."
	replyStorageFailure = "Sorry, there was an error scheduling your consultation. Please try again."
)

// Session is the view of a call session the scheduler needs.
type Session interface {
	// SessionID identifies the call for logging.
	SessionID() string
	// CallerPhone is the identity resolved at connect time, or the
	// extraction-failed sentinel.
	CallerPhone() string
	// AlreadyBooked reports whether this call has a confirmed booking.
	AlreadyBooked() bool
	// TryConfirmBooking flips the booking-confirmed flag; it returns false
	// if another path already confirmed.
	TryConfirmBooking() bool
	// BeginTermination starts the call teardown in the background.
	BeginTermination()
}

// Outcome is the result of a booking attempt. Reply is always a complete
// caller-facing sentence, whether or not the booking was accepted.
type Outcome struct {
	Scheduled bool
	Reply     string
	RecordID  string
}

// ConsultationScheduler writes bookings through the consultation store.
type ConsultationScheduler struct {
	store store.ConsultationStore
	now   func() time.Time
}

// New returns a scheduler writing through the given store.
func New(st store.ConsultationStore) *ConsultationScheduler {
	return &ConsultationScheduler{store: st, now: time.Now}
}

// Schedule books a consultation for the session. At most one booking per call
// is accepted; repeat attempts are rejected without touching storage.
func (s *ConsultationScheduler) Schedule(ctx context.Context, sess Session, req domain.BookingRequest) Outcome {
	if sess.AlreadyBooked() {
		logger.Base().Info("Rejecting repeat booking attempt", zap.String("session_id", sess.SessionID()))
		return Outcome{Reply: replyAlreadyBooked}
	}

	record := s.buildRecord(sess, req)

	id, err := s.store.Insert(ctx, record)
	if err != nil {
		logger.Base().Error("Consultation scheduling failed",
			zap.String("session_id", sess.SessionID()),
			zap.Error(err))
		return Outcome{Reply: replyStorageFailure}
	}

	// Only the first successful booking triggers teardown; a lost flag race
	// means another path already owns it.
	if sess.TryConfirmBooking() {
		sess.BeginTermination()
	}

	logger.Base().Info("Consultation scheduled",
		zap.String("session_id", sess.SessionID()),
		zap.String("record_id", id),
		zap.String("phone", record.Phone),
		zap.String("phone_source", record.PhoneSource))
	return Outcome{Scheduled: true, Reply: replyConfirmed, RecordID: id}
}

// buildRecord maps the caller-supplied fields onto a persistable record,
// resolving identity and normalizing any relative date.
func (s *ConsultationScheduler) buildRecord(sess Session, req domain.BookingRequest) *domain.Consultation {
	record := &domain.Consultation{
		ClosetType:     req.ClosetType,
		NumberOfSpaces: req.NumberOfSpaces,
		Name:           req.Name,
		Address:        req.Address,
		ZipCode:        req.ZipCode,
		PreferredTime:  req.PreferredTime,
		CreatedAt:      s.now(),
	}

	callerPhone := sess.CallerPhone()
	if callerPhone == domain.CallerPhoneExtractionFailed {
		callerPhone = ""
	}

	phone := req.Phone
	record.PhoneSource = domain.PhoneSourceProvidedByCustomer
	if phone == "" || phone == domain.PhoneUnknown {
		phone = callerPhone
		if phone != "" {
			record.PhoneSource = domain.PhoneSourceExtractedFromCall
		}
	}
	if phone == "" {
		phone = fmt.Sprintf("call_%d", s.now().Unix())
	}
	record.Phone = phone
	record.CallerPhone = callerPhone

	if req.PreferredDate != "" {
		record.PreferredDate = dates.Resolve(req.PreferredDate, s.now())
	}

	return record
}
