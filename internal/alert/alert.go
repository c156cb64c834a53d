// Package alert delivers notifications for flagged identity matches. The
// dispatch request is persisted synchronously; delivery over email and SMS
// happens in a background worker so a slow or failing channel never blocks a
// recognition call.
package alert

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/recognition"
)

//go:embed templates.yaml
var templatesYAML []byte

const queueSize = 256

type templateSet struct {
	EmailSubject string `yaml:"email_subject"`
	EmailBody    string `yaml:"email_body"`
	SMSBody      string `yaml:"sms_body"`
}

type renderContext struct {
	FullName   string
	Score      float64
	OccurredAt time.Time
}

type delivery struct {
	req recognition.AlertRequest
}

// Dispatcher implements recognition.AlertDispatcher. Notify appends an alert
// record and queues delivery; Close drains the queue.
type Dispatcher struct {
	records database.AlertRepository
	cfg     config.AlertConfig
	log     zerolog.Logger

	emailSubject *template.Template
	emailBody    *template.Template
	smsBody      *template.Template

	// httpClient posts to the SMS gateway; replaced in tests.
	httpClient *http.Client
	// sendMail sends one email; replaced in tests.
	sendMail func(addr string, from string, to []string, msg []byte) error

	queue chan delivery
	wg    sync.WaitGroup
	once  sync.Once
}

// NewDispatcher creates a dispatcher and starts its delivery worker.
func NewDispatcher(records database.AlertRepository, cfg config.AlertConfig, log zerolog.Logger) (*Dispatcher, error) {
	var set templateSet
	if err := yaml.Unmarshal(templatesYAML, &set); err != nil {
		return nil, fmt.Errorf("parsing alert templates: %w", err)
	}

	emailSubject, err := template.New("email_subject").Parse(set.EmailSubject)
	if err != nil {
		return nil, fmt.Errorf("parsing email subject template: %w", err)
	}
	emailBody, err := template.New("email_body").Parse(set.EmailBody)
	if err != nil {
		return nil, fmt.Errorf("parsing email body template: %w", err)
	}
	smsBody, err := template.New("sms_body").Parse(set.SMSBody)
	if err != nil {
		return nil, fmt.Errorf("parsing sms template: %w", err)
	}

	d := &Dispatcher{
		records:      records,
		cfg:          cfg,
		log:          log,
		emailSubject: emailSubject,
		emailBody:    emailBody,
		smsBody:      smsBody,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		queue:        make(chan delivery, queueSize),
	}
	d.sendMail = func(addr string, from string, to []string, msg []byte) error {
		return smtp.SendMail(addr, nil, from, to, msg)
	}

	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// channels returns the configured delivery channel names.
func (d *Dispatcher) channels() []string {
	var out []string
	if d.cfg.SMTPHost != "" && d.cfg.SMTPTo != "" {
		out = append(out, "email")
	}
	if d.cfg.SMSURL != "" && d.cfg.SMSTarget != "" {
		out = append(out, "sms")
	}
	return out
}

// Notify records the alert and queues delivery. The record append is
// synchronous so the alert is durably issued before the recognition call
// returns; delivery itself is fire-and-forget.
func (d *Dispatcher) Notify(ctx context.Context, req recognition.AlertRequest) error {
	record := &database.AlertRecord{
		IdentityID: req.IdentityID,
		Name:       req.Name,
		Surname:    req.Surname,
		Score:      req.Score,
		SentVia:    strings.Join(d.channels(), ","),
		OccurredAt: req.OccurredAt,
	}
	if err := d.records.Append(ctx, record); err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}

	select {
	case d.queue <- delivery{req: req}:
	default:
		d.log.Error().Str("identity", req.IdentityID).Msg("alert delivery queue full, dropping delivery")
	}
	return nil
}

// Close stops accepting deliveries and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for del := range d.queue {
		d.deliver(del.req)
	}
}

func (d *Dispatcher) deliver(req recognition.AlertRequest) {
	rc := renderContext{
		FullName:   fullName(req.Name, req.Surname),
		Score:      req.Score,
		OccurredAt: req.OccurredAt,
	}

	if d.cfg.SMTPHost != "" && d.cfg.SMTPTo != "" {
		if err := d.sendEmail(rc); err != nil {
			d.log.Error().Str("identity", req.IdentityID).Err(err).Msg("email alert delivery failed")
		}
	}
	if d.cfg.SMSURL != "" && d.cfg.SMSTarget != "" {
		if err := d.sendSMS(rc); err != nil {
			d.log.Error().Str("identity", req.IdentityID).Err(err).Msg("sms alert delivery failed")
		}
	}
}

func (d *Dispatcher) sendEmail(rc renderContext) error {
	var subject, body bytes.Buffer
	if err := d.emailSubject.Execute(&subject, rc); err != nil {
		return fmt.Errorf("rendering email subject: %w", err)
	}
	if err := d.emailBody.Execute(&body, rc); err != nil {
		return fmt.Errorf("rendering email body: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		d.cfg.SMTPFrom, d.cfg.SMTPTo, subject.String(), body.String())

	addr := fmt.Sprintf("%s:%d", d.cfg.SMTPHost, d.cfg.SMTPPort)
	if err := d.sendMail(addr, d.cfg.SMTPFrom, []string{d.cfg.SMTPTo}, []byte(msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

type smsPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (d *Dispatcher) sendSMS(rc renderContext) error {
	var body bytes.Buffer
	if err := d.smsBody.Execute(&body, rc); err != nil {
		return fmt.Errorf("rendering sms body: %w", err)
	}

	payload, err := json.Marshal(smsPayload{To: d.cfg.SMSTarget, Text: body.String()})
	if err != nil {
		return fmt.Errorf("marshaling sms payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.SMSURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.SMSToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.SMSToken)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func fullName(name, surname string) string {
	if surname == "" {
		return name
	}
	return name + " " + surname
}
