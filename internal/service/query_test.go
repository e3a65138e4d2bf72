package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hourswatch/internal/calendar"
	"hourswatch/internal/storage"
)

func TestQueryCalendarData(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	q := NewQuery(store, 0, zerolog.Nop())

	data, err := q.GetCalendarData(ctx, "2024-05-01", "2024-05-07")
	if err != nil {
		t.Fatalf("查询日历失败: %v", err)
	}
	if data.Timezone != "UTC" || len(data.Calendar) != 7 {
		t.Fatalf("未配置时应默认 UTC 且返回 7 天: %+v", data)
	}

	schedule := seedSchedule(t, store)
	schedule.Timezone = "Europe/Lisbon"
	if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertDailyEvent(ctx, storage.DailyEvent{
		Date: "2024-05-03", EventType: storage.EventClosedEarly, ExpectedOpenTime: "09:00", ExpectedCloseTime: "21:00",
	}); err != nil {
		t.Fatal(err)
	}

	data, err = q.GetCalendarData(ctx, "2024-05-01", "2024-05-07")
	if err != nil {
		t.Fatal(err)
	}
	if data.Timezone != "Europe/Lisbon" {
		t.Fatalf("时区应来自配置, 实际 %s", data.Timezone)
	}
	if data.Calendar[2].Status != storage.EventClosedEarly || data.Calendar[0].Status != storage.StatusNotOperatingDay {
		t.Fatalf("日历状态不正确: %+v", data.Calendar)
	}

	if _, err := q.GetCalendarData(ctx, "2024-05-07", "2024-05-01"); !errors.Is(err, calendar.ErrInvalidRange) {
		t.Fatalf("倒序区间应返回 ErrInvalidRange, 实际 %v", err)
	}
	year, err := q.GetCalendarData(ctx, "2024-01-01", "2024-12-31")
	if err != nil || len(year.Calendar) != 366 {
		t.Fatalf("整年区间应返回 366 天, 实际 %d (%v)", len(year.Calendar), err)
	}
}

func TestQuerySamples(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	q := NewQuery(store, 2, zerolog.Nop())

	if _, err := q.GetLatestSample(ctx); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("无样本时应返回 ErrNoSamples, 实际 %v", err)
	}
	recent, err := q.GetRecentSamples(ctx, 0)
	if err != nil || recent == nil || len(recent) != 0 {
		t.Fatalf("空库应返回空切片: %v (%v)", recent, err)
	}

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := store.InsertSample(ctx, &storage.Sample{Timestamp: base.Add(time.Duration(i) * time.Hour), IsOpen: i != 2}); err != nil {
			t.Fatal(err)
		}
	}

	recent, err = q.GetRecentSamples(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("默认条数应为 2, 实际 %d", len(recent))
	}
	latest, err := q.GetLatestSample(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.IsOpen || !latest.Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("最新样本不正确: %+v", latest)
	}
}

func TestQueryEventsForDate(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	q := NewQuery(store, 0, zerolog.Nop())

	if _, err := q.GetEventsForDate(ctx, "05/01/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("非法日期应返回 ErrInvalidDate, 实际 %v", err)
	}
	events, err := q.GetEventsForDate(ctx, "2024-05-01")
	if err != nil || events == nil || len(events) != 0 {
		t.Fatalf("无事件时应返回空切片: %v (%v)", events, err)
	}
}
