package delivery

import (
	"context"
	"errors"
	"fmt"

	mail "github.com/wneessen/go-mail"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

// SMTP protocols.
const (
	SMTPPlain    = "plain"
	SMTPStartTLS = "starttls"
	SMTPSSL      = "ssl"
)

// EmailChannel delivers alarm events over SMTP.
type EmailChannel struct {
	client *mail.Client
	from   string
}

// NewEmailChannel constructs an SMTP channel from the worker config.
func NewEmailChannel(cfg Config) (*EmailChannel, error) {
	if cfg.SMTPServer == "" {
		return nil, errors.New("email channel: empty smtp server")
	}
	if cfg.SMTPFrom == "" {
		return nil, errors.New("email channel: empty smtp from")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	switch cfg.SMTPProtocol {
	case SMTPPlain, "":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case SMTPStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case SMTPSSL:
		opts = append(opts, mail.WithSSL())
	default:
		return nil, fmt.Errorf("email channel: unknown smtp protocol %q", cfg.SMTPProtocol)
	}
	client, err := mail.NewClient(cfg.SMTPServer, opts...)
	if err != nil {
		return nil, err
	}
	return &EmailChannel{client: client, from: cfg.SMTPFrom}, nil
}

// Method reports the recipient method this channel serves.
func (c *EmailChannel) Method() string { return alarms.MethodEmail }

// Deliver sends the event as a plain-text mail. A recipient address
// the server refuses outright is a permanent failure.
func (c *EmailChannel) Deliver(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error {
	if c == nil || c.client == nil {
		return errors.New("email channel: nil client")
	}
	if recipient.Address == "" {
		return Permanent(errors.New("email channel: empty address"))
	}
	msg := mail.NewMsg()
	if err := msg.From(c.from); err != nil {
		return err
	}
	if err := msg.To(recipient.Address); err != nil {
		return Permanent(err)
	}
	msg.Subject(event.Summary)
	msg.SetBodyString(mail.TypeTextPlain, event.Description)
	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && sendErr.Reason == mail.ErrSMTPRcptTo {
			return Permanent(err)
		}
		return err
	}
	return nil
}
