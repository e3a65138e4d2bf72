package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridMailPath = "/v3/mail/send"
)

// EmailNotifier 通过 SendGrid 发送告警邮件。
type EmailNotifier struct {
	apiKey string
	from   string
	to     string
	host   string
	logger zerolog.Logger
}

// NewEmailNotifier 构造邮件告警器; host 为空时使用 SendGrid 官方地址。
func NewEmailNotifier(apiKey, from, to, host string, logger zerolog.Logger) *EmailNotifier {
	if host == "" {
		host = sendGridHost
	}
	if from == "" {
		from = to
	}
	return &EmailNotifier{
		apiKey: apiKey,
		from:   from,
		to:     to,
		host:   strings.TrimRight(host, "/"),
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify 发送纯文本邮件。
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.apiKey == "" || n.to == "" {
		return errors.New("sendgrid api key or recipient missing")
	}

	subject := renderSubject(note)
	body := renderMessage(note)
	message := mail.NewSingleEmail(
		mail.NewEmail("hourswatch", n.from),
		subject,
		mail.NewEmail("", n.to),
		body,
		"<pre>"+body+"</pre>",
	)

	request := sendgrid.GetRequest(n.apiKey, sendGridMailPath, n.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("send sendgrid request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid 响应码异常: %d %s", resp.StatusCode, resp.Body)
	}

	n.logger.Info().Str("date", note.Date).
		Str("event_type", string(note.EventType)).
		Int("status", resp.StatusCode).
		Msg("告警已发送 (Email)")
	return nil
}

// Multi 将告警分发到多个渠道, 单个渠道失败不影响其他渠道。
type Multi struct {
	notifiers []Notifier
}

// NewMulti 组合多个告警器, 忽略 nil。
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len 返回有效渠道数量。
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify 依次调用全部渠道并合并错误。
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*EmailNotifier)(nil)
	_ Notifier = (*Multi)(nil)
)
