/**
 * @description
 * Email rendering for notification events. Each event kind maps to a subject and
 * an HTML body rendered inside a shared branded layout.
 *
 * @notes
 * - Bodies use html/template so user-supplied values are escaped. Subjects are
 *   plain text and have CR/LF stripped before they reach a mail header.
 */

package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

// ErrUnknownKind is returned for events with no template.
var ErrUnknownKind = errors.New("no template for notification kind")

const layoutTemplate = `<!DOCTYPE html>
<html>
<head>
	<style>
		body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
		.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
		.header { background-color: #0B2545; padding: 30px; text-align: center; }
		.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
		.content { padding: 40px 30px; color: #0B2545; line-height: 1.6; }
		.info-box { background: #EEF4ED; padding: 15px; border-radius: 4px; border-left: 4px solid #8DA9C4; margin: 20px 0; }
		.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>ESTIEN CAPITAL</h1></div>
		<div class="content">
			<h2>{{.Title}}</h2>
			{{template "body" .Data}}
		</div>
		<div class="footer">
			&copy; Estien Capital. All rights reserved.<br>
			This is an automated message; please do not reply.
		</div>
	</div>
</body>
</html>`

type kindTemplate struct {
	subject string
	title   string
	body    string
}

var kindTemplates = map[string]kindTemplate{
	domain.NotificationKYCSubmitted: {
		subject: "New KYC submission: {{.name}}",
		title:   "KYC Submission Received",
		body: `<p>A new KYC submission is waiting for review.</p>
<div class="info-box">
	<strong>Name:</strong> {{.name}}<br>
	<strong>Email:</strong> {{.user_email}}<br>
	<strong>Nationality:</strong> {{.nationality}}<br>
	<strong>Submitted:</strong> {{.date}}<br>
	<strong>Submission ID:</strong> {{.submission_id}}
</div>`,
	},
	domain.NotificationKYCApproved: {
		subject: "Your identity verification is approved",
		title:   "Verification Approved",
		body: `<p>Dear {{.name}},</p>
<p>Your identity documents have been verified. You can now deposit and withdraw funds.</p>`,
	},
	domain.NotificationKYCRejected: {
		subject: "Action needed: identity verification",
		title:   "Verification Unsuccessful",
		body: `<p>Dear {{.name}},</p>
<p>We could not verify your identity documents.</p>
<div class="info-box"><strong>Reason:</strong> {{.reason}}</div>
<p>Please submit new documents from the app.</p>`,
	},
	domain.NotificationDepositRequested: {
		subject: "Deposit request received: {{.reference}}",
		title:   "Deposit Request Received",
		body: `<p>Dear {{.name}},</p>
<p>We have received your deposit request of <strong>{{.amount}}</strong> via {{.payment_method}}.</p>
<div class="info-box"><strong>Reference:</strong> {{.reference}}<br><strong>Date:</strong> {{.date}}</div>
<p>Your wallet will be credited once the payment is confirmed.</p>`,
	},
	domain.NotificationWithdrawalRequested: {
		subject: "Withdrawal request received: {{.reference}}",
		title:   "Withdrawal Request Received",
		body: `<p>Dear {{.name}},</p>
<p>We have received your withdrawal request of <strong>{{.amount}}</strong> via {{.payment_method}}.</p>
<div class="info-box"><strong>Reference:</strong> {{.reference}}<br><strong>Date:</strong> {{.date}}</div>
<p>Funds leave your wallet once the request is approved.</p>`,
	},
	domain.NotificationFirmTransactionAlert: {
		subject: "New {{.type}} request: {{.amount}}",
		title:   "Transaction Awaiting Review",
		body: `<p>A new {{.type}} request is waiting for review.</p>
<div class="info-box">
	<strong>Client:</strong> {{.name}} ({{.user_email}})<br>
	<strong>Amount:</strong> {{.amount}}<br>
	<strong>Method:</strong> {{.payment_method}}<br>
	<strong>Reference:</strong> {{.reference}}<br>
	<strong>Transaction ID:</strong> {{.transaction_id}}
</div>`,
	},
	domain.NotificationTransactionCompleted: {
		subject: "Your {{.type}} of {{.amount}} is complete",
		title:   "Transaction Completed",
		body: `<p>Dear {{.name}},</p>
<p>Your {{.type}} of <strong>{{.amount}}</strong> has been completed.</p>
<div class="info-box"><strong>Reference:</strong> {{.reference}}</div>`,
	},
	domain.NotificationTransactionRejected: {
		subject: "Your {{.type}} request was not completed",
		title:   "Transaction Not Completed",
		body: `<p>Dear {{.name}},</p>
<p>Your {{.type}} request of <strong>{{.amount}}</strong> was not completed.</p>
<div class="info-box"><strong>Reason:</strong> {{.reason}}<br><strong>Reference:</strong> {{.reference}}</div>`,
	},
}

type compiledTemplate struct {
	subject *texttemplate.Template
	page    *template.Template
	title   string
}

// Renderer turns notification events into emails.
type Renderer struct {
	templates map[string]compiledTemplate
}

// NewRenderer parses every template up front so a broken template fails at startup.
func NewRenderer() (*Renderer, error) {
	layout, err := template.New("layout").Parse(layoutTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	compiled := make(map[string]compiledTemplate, len(kindTemplates))
	for kind, kt := range kindTemplates {
		subject, err := texttemplate.New(kind + ".subject").Option("missingkey=zero").Parse(kt.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		page, err := template.Must(layout.Clone()).Option("missingkey=zero").New("body").Parse(kt.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		compiled[kind] = compiledTemplate{subject: subject, page: page, title: kt.title}
	}
	return &Renderer{templates: compiled}, nil
}

// Render produces the subject and HTML body for event.
func (r *Renderer) Render(event domain.NotificationEvent) (Message, error) {
	ct, ok := r.templates[event.Kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, event.Kind)
	}
	data := event.Data
	if data == nil {
		data = map[string]string{}
	}

	var subject bytes.Buffer
	if err := ct.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", event.Kind, err)
	}
	var body bytes.Buffer
	if err := ct.page.ExecuteTemplate(&body, "layout", struct {
		Title string
		Data  map[string]string
	}{Title: ct.title, Data: data}); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", event.Kind, err)
	}
	return Message{Subject: headerSafe(subject.String()), HTML: body.String()}, nil
}

var headerReplacer = strings.NewReplacer("\r", " ", "\n", " ")

func headerSafe(s string) string {
	return strings.TrimSpace(headerReplacer.Replace(s))
}
