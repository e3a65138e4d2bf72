package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hourswatch/internal/alerting"
	"hourswatch/internal/storage"
)

// SimulateAlert 以给定事件类型构造一条当日事件并发送告警，用于验证告警通道。
func (a *App) SimulateAlert(ctx context.Context, eventType string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	kind := storage.EventType(eventType)
	if !kind.Anomaly() {
		return fmt.Errorf("事件类型 %q 不会触发告警，可选 never_opened/opened_late/closed_early", eventType)
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	schedule := a.simulatedSchedule(ctx)
	event := simulatedEvent(schedule, kind, time.Now())

	note := alerting.NewNotification(schedule, event, a.Config.Alerting.Channels)
	note.AdditionalMsg = "这是一条模拟告警"
	if err := notifier.Notify(ctx, note); err != nil {
		return err
	}
	a.Logger.Info().Str("event_type", eventType).Str("date", event.Date).Msg("模拟告警已发送")
	return nil
}

// simulatedSchedule 优先读取库中的营业配置，不可用时退回占位配置。
func (a *App) simulatedSchedule(ctx context.Context) storage.ResourceSchedule {
	placeholder := storage.ResourceSchedule{
		Name:          "Simulated Restaurant",
		URL:           "https://example.com",
		OperatingDays: []int{0, 1, 2, 3, 4, 5, 6},
		OpenTime:      "09:00",
		CloseTime:     "21:00",
		Timezone:      "UTC",
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("无法打开数据库，使用占位配置")
		return placeholder
	}
	defer closeStore()

	schedule, err := store.GetResourceSchedule(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("无法读取营业配置，使用占位配置")
		return placeholder
	}
	return schedule
}

func simulatedEvent(schedule storage.ResourceSchedule, kind storage.EventType, now time.Time) storage.DailyEvent {
	loc, err := schedule.Location()
	if err != nil {
		loc = time.UTC
	}
	event := storage.DailyEvent{
		Date:              now.In(loc).Format(storage.DateLayout),
		EventType:         kind,
		ExpectedOpenTime:  schedule.OpenTime,
		ExpectedCloseTime: schedule.CloseTime,
		Details: storage.EventDetails{
			LastUpdated: now.UTC().Format(time.RFC3339),
			Timezone:    loc.String(),
		},
	}

	switch kind {
	case storage.EventOpenedLate:
		open := shiftClock(schedule.OpenTime, 45*time.Minute)
		event.ActualOpenTime = &open
		event.Details = withCounts(event.Details, 12, 9)
	case storage.EventClosedEarly:
		open := schedule.OpenTime
		closed := shiftClock(schedule.CloseTime, -30*time.Minute)
		event.ActualOpenTime = &open
		event.ActualCloseTime = &closed
		event.Details = withCounts(event.Details, 12, 10)
	case storage.EventNeverOpened:
		event.Details = withCounts(event.Details, 12, 0)
	}
	return event
}

func withCounts(details storage.EventDetails, total, open int) storage.EventDetails {
	details.TotalChecks = total
	details.OpenChecks = open
	details.ClosedChecks = total - open
	return details
}

func shiftClock(clock string, d time.Duration) string {
	t, err := time.Parse(storage.ClockLayout, clock)
	if err != nil {
		return clock
	}
	shifted := t.Add(d)
	if shifted.Day() != t.Day() {
		return clock
	}
	return shifted.Format(storage.ClockLayout)
}
