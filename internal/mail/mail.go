// Package mail renders and delivers account emails. Jobs arrive through
// the message queue so that sending never blocks a request; a failed
// send is logged and dropped, never retried or surfaced to the caller.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactskeeper/apiserver/config"
	"github.com/contactskeeper/apiserver/internal/mq"
	gomail "github.com/wneessen/go-mail"
)

// Channel is the queue channel carrying email jobs.
const Channel = "emails"

// Job kinds.
const (
	JobConfirm = "confirm"
	JobReset   = "reset"
)

const sendTimeout = 30 * time.Second

// Job describes one email to deliver.
type Job struct {
	Kind     string `json:"kind"`
	To       string `json:"to"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Mailer delivers email jobs over SMTP.
type Mailer struct {
	cfg     config.SMTPConfig
	baseURL string
}

func NewMailer(cfg config.SMTPConfig, baseURL string) *Mailer {
	return &Mailer{cfg: cfg, baseURL: baseURL}
}

// Send renders and delivers a single job.
func (m *Mailer) Send(ctx context.Context, job Job) error {
	var subject, body string
	switch job.Kind {
	case JobConfirm:
		subject = "Confirm your email"
		link := fmt.Sprintf("%s/api/auth/confirmed_email/%s", m.baseURL, job.Token)
		body = fmt.Sprintf(
			`<p>Hi %s,</p><p>Please confirm your email by following <a href="%s">this link</a>.</p>`,
			job.Username, link,
		)
	case JobReset:
		subject = "Password reset"
		link := fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, job.Token)
		body = fmt.Sprintf(
			`<p>To reset your password follow <a href="%s">this link</a>. The link is valid for one hour.</p>`,
			link,
		)
	default:
		return fmt.Errorf("unknown email job kind %q", job.Kind)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(job.To); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	switch {
	case m.cfg.SSLTLS:
		opts = append(opts, gomail.WithSSL())
	case m.cfg.StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return client.DialAndSendWithContext(ctx, msg)
}

// Enqueue publishes a job to the email channel. Publishing failures are
// logged and swallowed: account flows must not fail because the mail
// pipeline is down.
func Enqueue(ctx context.Context, queue *mq.Queue, job Job) {
	data, err := json.Marshal(job)
	if err != nil {
		slog.Error("marshal email job", "kind", job.Kind, "error", err)
		return
	}
	if _, err := queue.Publish(ctx, Channel, data, map[string]string{"kind": job.Kind}); err != nil {
		slog.Error("enqueue email job", "kind", job.Kind, "to", job.To, "error", err)
	}
}

// Dispatch consumes email jobs from the queue until ctx is done. Send
// failures are logged and the message is acked so it is never retried.
func Dispatch(ctx context.Context, queue *mq.Queue, mailer *Mailer) error {
	return queue.Subscribe(ctx, Channel, func(ctx context.Context, msg mq.Message) error {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			slog.Error("decode email job", "id", msg.ID, "error", err)
			return nil
		}
		if err := mailer.Send(ctx, job); err != nil {
			slog.Error("send email", "kind", job.Kind, "to", job.To, "error", err)
		}
		return nil
	})
}
