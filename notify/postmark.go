package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds the Postmark credentials and envelope.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
	// Tag groups goFactor mail in the Postmark dashboard.
	Tag string
}

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Postmark sends mail messages through the Postmark transactional API.
type Postmark struct {
	api postmarkAPI
	cfg PostmarkConfig
}

// NewPostmark validates cfg and returns a Postmark sender.
func NewPostmark(cfg PostmarkConfig) (*Postmark, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: postmark sender address is required", ErrInvalidConfig)
	}
	return &Postmark{
		api: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg: cfg,
	}, nil
}

func (p *Postmark) Send(ctx context.Context, msg goFactor.Message) error {
	if msg.Channel != goFactor.ChannelMail {
		return fmt.Errorf("%w: postmark cannot send %q", ErrNoRoute, msg.Channel)
	}
	if strings.TrimSpace(msg.To) == "" {
		return ErrEmptyRecipient
	}

	resp, err := p.api.SendEmail(ctx, postmark.Email{
		From:     p.cfg.From,
		ReplyTo:  p.cfg.ReplyTo,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      p.cfg.Tag,
		TextBody: msg.Body,
	})
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrDelivery, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
