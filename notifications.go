package goFactor

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	subjectVerifyEmail       = "Please verify your email"
	subjectOTP               = "Your one time password"
	subjectUsername          = "Your account username"
	subjectPasswordReset     = "Reset your password"
	subjectUnrecognizedLogin = "Unrecognized access location."
)

// link builds an absolute URL for path carrying tok as the token query
// parameter.
func (e *Engine) link(path, tok string) string {
	base, err := url.Parse(e.config.Links.BaseURL)
	if err != nil {
		// Validate rejects unparsable base URLs.
		return path + "?token=" + url.QueryEscape(tok)
	}
	u := base.JoinPath(path)
	u.RawQuery = url.Values{"token": {tok}}.Encode()
	return u.String()
}

func (e *Engine) verifyMail(to, tok string) Message {
	return Message{
		Channel: ChannelMail,
		To:      to,
		Subject: subjectVerifyEmail,
		Body: "Thanks for signing up. Confirm your email address by opening the link below.\n\n" +
			e.link(e.config.Links.VerifyEmailPath, tok) + "\n",
	}
}

func otpMessage(channel Channel, to, code string) Message {
	if channel == ChannelSMS {
		return Message{
			Channel: ChannelSMS,
			To:      to,
			Body:    "Your one time password is " + code,
		}
	}
	return Message{
		Channel: ChannelMail,
		To:      to,
		Subject: subjectOTP,
		Body:    "Your one time password is " + code + "\n\nIf you did not try to log in, change your password.\n",
	}
}

func usernameMail(to, username string) Message {
	return Message{
		Channel: ChannelMail,
		To:      to,
		Subject: subjectUsername,
		Body:    "Your account username is " + username + "\n",
	}
}

func (e *Engine) passwordResetMail(to, tok string) Message {
	return Message{
		Channel: ChannelMail,
		To:      to,
		Subject: subjectPasswordReset,
		Body: "Reset your password by opening the link below. If you did not ask for this, ignore this mail.\n\n" +
			e.link(e.config.Links.ChangePasswordPath, tok) + "\n",
	}
}

func (e *Engine) unrecognizedAccessMail(to string, loc Location, tok string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your account was accessed from an unrecognized location: %s.\n\n", describeLocation(loc))
	b.WriteString("If this was not you, reset your password now:\n\n")
	b.WriteString(e.link(e.config.Links.ChangePasswordPath, tok))
	b.WriteString("\n")
	return Message{
		Channel: ChannelMail,
		To:      to,
		Subject: subjectUnrecognizedLogin,
		Body:    b.String(),
	}
}

func describeLocation(loc Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}
