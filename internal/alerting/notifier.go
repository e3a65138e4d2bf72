package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hourswatch/internal/storage"
)

// Notification 封装一次营业异常告警的上下文。
type Notification struct {
	Restaurant    string
	URL           string
	Date          string
	EventType     storage.EventType
	ExpectedOpen  string
	ExpectedClose string
	ActualOpen    string
	ActualClose   string
	Timezone      string
	OpenRatio     decimal.Decimal
	Channels      []string
	AdditionalMsg string
}

// NewNotification 由日事件与营业配置构造告警内容。
func NewNotification(schedule storage.ResourceSchedule, event storage.DailyEvent, channels []string) Notification {
	note := Notification{
		Restaurant:    schedule.Name,
		URL:           schedule.URL,
		Date:          event.Date,
		EventType:     event.EventType,
		ExpectedOpen:  event.ExpectedOpenTime,
		ExpectedClose: event.ExpectedCloseTime,
		Timezone:      event.Details.Timezone,
		OpenRatio:     decimal.Zero,
		Channels:      channels,
	}
	if event.ActualOpenTime != nil {
		note.ActualOpen = *event.ActualOpenTime
	}
	if event.ActualCloseTime != nil {
		note.ActualClose = *event.ActualCloseTime
	}
	if total := event.Details.TotalChecks; total > 0 {
		note.OpenRatio = decimal.NewFromInt(int64(event.Details.OpenChecks)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(total)))
	}
	return note
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("date", note.Date).
		Str("event_type", string(note.EventType)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderSubject(note Notification) string {
	name := note.Restaurant
	if name == "" {
		name = "restaurant"
	}
	return fmt.Sprintf("[Hours Alert] %s %s on %s", name, describeEvent(note.EventType), note.Date)
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(renderSubject(note))
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Event: %s\n", note.EventType))
	builder.WriteString(fmt.Sprintf("Expected: %s - %s", note.ExpectedOpen, note.ExpectedClose))
	if note.Timezone != "" {
		builder.WriteString(fmt.Sprintf(" (%s)", note.Timezone))
	}
	builder.WriteString("\n")
	if note.ActualOpen != "" {
		builder.WriteString(fmt.Sprintf("Opened at: %s\n", note.ActualOpen))
	}
	if note.ActualClose != "" {
		builder.WriteString(fmt.Sprintf("Closed at: %s\n", note.ActualClose))
	}
	builder.WriteString(fmt.Sprintf("Open checks: %s%%\n", note.OpenRatio.StringFixed(1)))
	if note.URL != "" {
		builder.WriteString(fmt.Sprintf("Page: %s\n", note.URL))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

func describeEvent(t storage.EventType) string {
	switch t {
	case storage.EventNeverOpened:
		return "never opened"
	case storage.EventOpenedLate:
		return "opened late"
	case storage.EventClosedEarly:
		return "closed early"
	case storage.EventFullyOpen:
		return "was open as expected"
	case storage.EventOutsideHours:
		return "stayed closed outside hours"
	default:
		return string(t)
	}
}

var _ Notifier = (*TelegramNotifier)(nil)
