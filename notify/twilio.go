package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
)

const twilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds the account credentials and sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// BaseURL overrides the API host.
	BaseURL string
	Client  *http.Client
}

// Twilio sends SMS messages through the Twilio Messages REST resource.
type Twilio struct {
	cfg      TwilioConfig
	endpoint string
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilio validates cfg and returns a Twilio sender.
func NewTwilio(cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: twilio sending number is required", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint, err := url.JoinPath(cfg.BaseURL, "2010-04-01", "Accounts", cfg.AccountSID, "Messages.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Twilio{cfg: cfg, endpoint: endpoint}, nil
}

func (t *Twilio) Send(ctx context.Context, msg goFactor.Message) error {
	if msg.Channel != goFactor.ChannelSMS {
		return fmt.Errorf("%w: twilio cannot send %q", ErrNoRoute, msg.Channel)
	}
	if strings.TrimSpace(msg.To) == "" {
		return ErrEmptyRecipient
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", t.cfg.From)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr twilioError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return errors.Join(ErrDelivery, fmt.Errorf("twilio status %d", resp.StatusCode))
	}
	return errors.Join(ErrDelivery, fmt.Errorf("twilio error: %d - %s", apiErr.Code, apiErr.Message))
}
