// Package twilio ends PSTN call legs through Twilio's REST API.
package twilio

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// callStatusCompleted is the status that ends an in-progress call.
const callStatusCompleted = "completed"

// CallControlService issues end-call requests against the Twilio control
// plane. If credentials are absent the service is disabled and every call is
// a logged no-op error; the caller treats that as a skipped teardown stage,
// never as fatal.
type CallControlService struct {
	client  *twilio.RestClient
	limiter *rate.Limiter
	enabled bool
}

// NewCallControlService creates the call control service. Missing credentials
// disable it rather than failing.
func NewCallControlService(accountSID, authToken string) *CallControlService {
	if accountSID == "" || authToken == "" {
		logger.Base().Warn("Twilio credentials not provided, provider call control disabled")
		return &CallControlService{enabled: false}
	}

	return &CallControlService{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		// Teardown bursts are small; cap the request rate so a storm of
		// ending calls cannot hammer the provider API.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		enabled: true,
	}
}

// Enabled reports whether provider call control is configured.
func (s *CallControlService) Enabled() bool {
	return s.enabled
}

// EndCall marks a call completed at the provider, which hangs up the PSTN leg.
func (s *CallControlService) EndCall(ctx context.Context, callSID string) error {
	if !s.enabled {
		return fmt.Errorf("twilio call control is disabled")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params := &api.UpdateCallParams{}
	params.SetStatus(callStatusCompleted)

	if _, err := s.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("failed to end call %s: %w", callSID, err)
	}

	logger.Base().Info("Provider call ended", zap.String("call_sid", callSID))
	return nil
}
