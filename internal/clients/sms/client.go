package sms

import (
	"context"
	"fmt"

	"voice-agent-server/internal/observability"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client sends SMS messages through the Twilio REST API.
type Client struct {
	api        *twilio.RestClient
	fromNumber string
	logger     *observability.Logger
}

func New(accountSID, authToken, fromNumber string, logger *observability.Logger) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("Twilio credentials are required")
	}
	if fromNumber == "" {
		return nil, fmt.Errorf("Twilio sender number is required")
	}

	api := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{
		api:        api,
		fromNumber: fromNumber,
		logger:     logger,
	}, nil
}

func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "sms_to", Value: to})

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	if _, err := c.api.Api.CreateMessage(params); err != nil {
		c.logger.Error(ctx, "failed to send SMS", err)
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	c.logger.Info(ctx, "SMS sent successfully")
	return nil
}
