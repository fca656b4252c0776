package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

// EmailSender is the part of the resend client the mailer uses; resend.Client.Emails
// satisfies it.
type EmailSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type message struct {
	subject string
	body    *template.Template
}

var messages = map[orders.EventType]message{
	orders.EventConfirmed: {
		subject: "Your order %s is confirmed",
		body: template.Must(template.New("confirmed").Parse(
			`<p>Hi {{.FullName}},</p><p>Order <b>{{.OrderID}}</b> is confirmed and being prepared. Total: {{.Total}} VND.</p>`)),
	},
	orders.EventRejected: {
		subject: "Your order %s was cancelled",
		body: template.Must(template.New("rejected").Parse(
			`<p>Hi {{.FullName}},</p><p>We could not accept order <b>{{.OrderID}}</b>: {{.Reason}}</p>`)),
	},
	orders.EventShipped: {
		subject: "Your order %s has shipped",
		body: template.Must(template.New("shipped").Parse(
			`<p>Hi {{.FullName}},</p><p>Order <b>{{.OrderID}}</b> is on its way.</p>`)),
	},
	orders.EventDelivered: {
		subject: "Your order %s was delivered",
		body: template.Must(template.New("delivered").Parse(
			`<p>Hi {{.FullName}},</p><p>Order <b>{{.OrderID}}</b> was delivered. Enjoy your new phone!</p>`)),
	},
}

// Mailer emails customers about their orders through resend.
type Mailer struct {
	emails    EmailSender
	fromEmail string
	fromName  string
	logger    *zap.Logger
}

// NewMailer builds a Mailer backed by a resend client for apiKey.
func NewMailer(apiKey, fromEmail, fromName string, logger *zap.Logger) *Mailer {
	return NewMailerWithSender(resend.NewClient(apiKey).Emails, fromEmail, fromName, logger)
}

// NewMailerWithSender builds a Mailer over any EmailSender.
func NewMailerWithSender(emails EmailSender, fromEmail, fromName string, logger *zap.Logger) *Mailer {
	return &Mailer{emails: emails, fromEmail: fromEmail, fromName: fromName, logger: logger}
}

// Notify emails the customer. Events without an address are skipped.
func (m *Mailer) Notify(_ context.Context, ev orders.Event) error {
	if ev.Email == "" {
		m.logger.Debug("no email on order, skipping", zap.String("order_id", ev.OrderID))
		return nil
	}
	msg, ok := messages[ev.Type]
	if !ok {
		return fmt.Errorf("no email template for %s", ev.Type)
	}

	var html bytes.Buffer
	err := msg.body.Execute(&html, struct {
		FullName, OrderID, Reason, Total string
	}{ev.FullName, ev.OrderID, ev.Reason, FormatVND(ev.TotalPrice)})
	if err != nil {
		return fmt.Errorf("render %s email: %w", ev.Type, err)
	}

	sent, err := m.emails.Send(&resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail),
		To:      []string{ev.Email},
		Subject: fmt.Sprintf(msg.subject, ev.OrderID),
		Html:    html.String(),
		Headers: map[string]string{"X-Entity-Ref-ID": ev.EventID},
		Tags: []resend.Tag{
			{Name: "category", Value: "order"},
			{Name: "event", Value: string(ev.Type)},
		},
	})
	if err != nil {
		m.logger.Error("failed to send order email",
			zap.Error(err),
			zap.String("order_id", ev.OrderID),
			zap.String("event", string(ev.Type)))
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Info("order email sent",
		zap.String("email_id", sent.Id),
		zap.String("order_id", ev.OrderID),
		zap.String("event", string(ev.Type)))
	return nil
}

// FormatVND groups an amount by thousands with dots, e.g. 22030000 -> "22.030.000".
func FormatVND(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if amount < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
