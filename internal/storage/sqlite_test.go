package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "hourswatch.db"))
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return store
}

func strPtr(v string) *string { return &v }

func TestSQLiteSamplesForDateUsesTimezone(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 2024-03-10 in Sao Paulo (UTC-3) spans 03:00Z on the 10th to 03:00Z on the 11th.
	stamps := []time.Time{
		time.Date(2024, 3, 10, 2, 59, 0, 0, time.UTC),  // previous local day
		time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),  // 09:00 local
		time.Date(2024, 3, 11, 1, 30, 0, 0, time.UTC),  // 22:30 local, same day
		time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC),   // next local day
		time.Date(2024, 3, 10, 15, 15, 0, 0, time.UTC), // inserted out of order
	}
	for i, ts := range stamps {
		latency := int64(100 + i)
		sample := &Sample{Timestamp: ts, IsOpen: i%2 == 0, ResponseTimeMS: &latency}
		if err := store.InsertSample(ctx, sample); err != nil {
			t.Fatalf("写入样本失败: %v", err)
		}
		if sample.ID == 0 {
			t.Fatal("写入后应回填 ID")
		}
	}

	samples, err := store.ListSamplesForDate(ctx, "2024-03-10", loc)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("期望 3 条样本, 实际 %d", len(samples))
	}
	want := []time.Time{stamps[1], stamps[4], stamps[2]}
	for i, s := range samples {
		if !s.Timestamp.Equal(want[i]) {
			t.Fatalf("第 %d 条时间应为 %s, 实际 %s", i, want[i], s.Timestamp)
		}
		if s.ResponseTimeMS == nil {
			t.Fatal("response time 应保留")
		}
	}
}

func TestSQLiteRecentAndLatest(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if _, err := store.LatestSample(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("空库应返回 ErrNotFound, 实际 %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		sample := &Sample{Timestamp: base.Add(time.Duration(i) * 15 * time.Minute), IsOpen: true}
		if i == 3 {
			sample.IsOpen = false
			sample.ErrorMessage = strPtr("timeout")
		}
		if err := store.InsertSample(ctx, sample); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.ListRecentSamples(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Fatalf("最近样本应按时间倒序: %+v", recent)
	}

	latest, err := store.LatestSample(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.IsOpen || latest.ErrorMessage == nil || *latest.ErrorMessage != "timeout" {
		t.Fatalf("最新样本不正确: %+v", latest)
	}

	count, err := store.CountSamples(ctx)
	if err != nil || count != 4 {
		t.Fatalf("期望 4 条, 实际 %d (%v)", count, err)
	}
}

func TestSQLiteUpsertDailyEventIsIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	event := DailyEvent{
		Date:              "2024-05-01",
		EventType:         EventOpenedLate,
		ExpectedOpenTime:  "09:00",
		ExpectedCloseTime: "21:00",
		ActualOpenTime:    strPtr("09:15"),
		Details:           EventDetails{TotalChecks: 5, OpenChecks: 4, ClosedChecks: 1, Timezone: "UTC"},
	}
	for i := 0; i < 2; i++ {
		if err := store.UpsertDailyEvent(ctx, event); err != nil {
			t.Fatalf("upsert 失败: %v", err)
		}
	}

	event.ActualCloseTime = strPtr("20:30")
	event.Details.TotalChecks = 6
	if err := store.UpsertDailyEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListEventsForDate(ctx, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("同一 (date, type) 只应有一行, 实际 %d", len(events))
	}
	got := events[0]
	if got.ActualCloseTime == nil || *got.ActualCloseTime != "20:30" || got.Details.TotalChecks != 6 {
		t.Fatalf("冲突时应覆盖字段: %+v", got)
	}
	if got.ActualOpenTime == nil || *got.ActualOpenTime != "09:15" {
		t.Fatalf("actual_open_time 不正确: %+v", got)
	}
}

func TestSQLiteEventsBetweenAndPrune(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	seed := []DailyEvent{
		{Date: "2024-04-30", EventType: EventFullyOpen},
		{Date: "2024-05-01", EventType: EventFullyOpen},
		{Date: "2024-05-01", EventType: EventNeverOpened},
		{Date: "2024-05-03", EventType: EventClosedEarly},
		{Date: "2024-05-04", EventType: EventFullyOpen},
	}
	for _, ev := range seed {
		ev.ExpectedOpenTime, ev.ExpectedCloseTime = "09:00", "21:00"
		if err := store.UpsertDailyEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	events, err := store.ListEventsBetween(ctx, "2024-05-01", "2024-05-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("区间两端应包含在内, 实际 %d 条", len(events))
	}

	removed, err := store.PruneDailyEvents(ctx, "2024-05-01", EventNeverOpened)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("应删除 1 条过期记录, 实际 %d", removed)
	}
	left, err := store.ListEventsForDate(ctx, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].EventType != EventNeverOpened {
		t.Fatalf("应只保留 never_opened: %+v", left)
	}

	if _, err := store.ListEventsBetween(ctx, "2024-13-01", "2024-05-03"); err == nil {
		t.Fatal("非法日期应报错")
	}
}

func TestSQLiteScheduleRoundTrip(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if _, err := store.GetResourceSchedule(ctx); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("未配置时应返回 ErrScheduleNotFound, 实际 %v", err)
	}

	schedule := ResourceSchedule{
		Name:                 "Cantina",
		URL:                  "https://example.com/cantina",
		ClosedIndicator:      "Fechado",
		CheckIntervalMinutes: 15,
		OperatingDays:        []int{1, 2, 3, 4, 5},
		OpenTime:             "11:00",
		CloseTime:            "22:00",
		Timezone:             "America/Sao_Paulo",
	}
	if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
		t.Fatal(err)
	}
	schedule.CloseTime = "23:00"
	if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetResourceSchedule(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.CloseTime != "23:00" || len(got.OperatingDays) != 5 || got.Timezone != "America/Sao_Paulo" {
		t.Fatalf("读取的配置不正确: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at 应被写入")
	}
}

func TestSQLiteRecordAlertDeduplicates(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	rec := AlertRecord{Date: "2024-05-01", EventType: EventNeverOpened, Channels: []string{"telegram"}}
	created, err := store.RecordAlert(ctx, rec)
	if err != nil || !created {
		t.Fatalf("首次记录应成功: created=%v err=%v", created, err)
	}
	created, err = store.RecordAlert(ctx, rec)
	if err != nil || created {
		t.Fatalf("重复告警应被忽略: created=%v err=%v", created, err)
	}

	if err := store.ReleaseAlert(ctx, rec.Date, rec.EventType); err != nil {
		t.Fatal(err)
	}
	created, err = store.RecordAlert(ctx, rec)
	if err != nil || !created {
		t.Fatalf("释放后应可再次记录: created=%v err=%v", created, err)
	}
}
