package calendar

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"hourswatch/internal/storage"
)

func ev(date string, et storage.EventType) storage.DailyEvent {
	return storage.DailyEvent{Date: date, EventType: et, ExpectedOpenTime: "09:00", ExpectedCloseTime: "21:00"}
}

func TestBuildDenseRange(t *testing.T) {
	days, err := Build("2024-02-27", "2024-03-02", []storage.DailyEvent{ev("2024-02-29", storage.EventFullyOpen)})
	if err != nil {
		t.Fatalf("构建日历失败: %v", err)
	}
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	if len(days) != len(want) {
		t.Fatalf("期望 %d 天, 实际 %d", len(want), len(days))
	}
	for i, d := range days {
		if d.Date != want[i] {
			t.Fatalf("第 %d 天应为 %s, 实际 %s", i, want[i], d.Date)
		}
		if d.Events == nil {
			t.Fatalf("%s 的 events 不应为 nil", d.Date)
		}
		if d.Date != "2024-02-29" && d.Status != storage.StatusNotOperatingDay {
			t.Fatalf("无事件日期应为 not_operating_day, %s 实际 %s", d.Date, d.Status)
		}
	}
	if days[2].Status != storage.EventFullyOpen {
		t.Fatalf("闰日应为 fully_open, 实际 %s", days[2].Status)
	}
}

func TestBuildLengthAcrossDSTAndYears(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"2024-05-01", "2024-05-01", 1},
		{"2024-03-01", "2024-03-31", 31}, // US and EU spring-forward inside
		{"2024-10-20", "2024-11-10", 22},
		{"2023-12-30", "2024-01-02", 4},
		{"2024-01-01", "2024-12-31", 366},
	}
	for _, tc := range cases {
		days, err := Build(tc.start, tc.end, nil)
		if err != nil {
			t.Fatalf("%s..%s: %v", tc.start, tc.end, err)
		}
		if len(days) != tc.want {
			t.Fatalf("%s..%s 期望 %d 天, 实际 %d", tc.start, tc.end, tc.want, len(days))
		}
		for i := 1; i < len(days); i++ {
			if days[i-1].Date >= days[i].Date {
				t.Fatalf("日期应严格升序: %s, %s", days[i-1].Date, days[i].Date)
			}
		}
		n, err := DayCount(tc.start, tc.end)
		if err != nil || n != tc.want {
			t.Fatalf("DayCount 不一致: %d (%v)", n, err)
		}
	}
}

func TestBuildPriorityLaw(t *testing.T) {
	cases := []struct {
		name   string
		events []storage.EventType
		want   storage.EventType
	}{
		{"never beats all", []storage.EventType{storage.EventFullyOpen, storage.EventOpenedLate, storage.EventNeverOpened, storage.EventClosedEarly}, storage.EventNeverOpened},
		{"closed early beats late", []storage.EventType{storage.EventOpenedLate, storage.EventClosedEarly}, storage.EventClosedEarly},
		{"late beats fully open", []storage.EventType{storage.EventFullyOpen, storage.EventOpenedLate}, storage.EventOpenedLate},
		{"fully open beats outside", []storage.EventType{storage.EventOutsideHours, storage.EventFullyOpen}, storage.EventFullyOpen},
		{"outside only", []storage.EventType{storage.EventOutsideHours}, storage.StatusNotOperatingDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seeded []storage.DailyEvent
			for _, et := range tc.events {
				seeded = append(seeded, ev("2024-05-01", et))
			}
			days, err := Build("2024-05-01", "2024-05-01", seeded)
			if err != nil {
				t.Fatal(err)
			}
			if days[0].Status != tc.want {
				t.Fatalf("期望 %s, 实际 %s", tc.want, days[0].Status)
			}
			if len(days[0].Events) != len(tc.events) {
				t.Fatalf("应保留全部 %d 条事件, 实际 %d", len(tc.events), len(days[0].Events))
			}
		})
	}
}

func TestBuildInvalidRange(t *testing.T) {
	for _, r := range [][2]string{
		{"2024-05-02", "2024-05-01"},
		{"yesterday", "2024-05-01"},
		{"2024-05-01", "2024-02-30"},
	} {
		if _, err := Build(r[0], r[1], nil); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%v 应返回 ErrInvalidRange, 实际 %v", r, err)
		}
	}
}

type countingSource struct {
	calls  int
	events []storage.DailyEvent
	err    error
}

func (c *countingSource) ListEventsBetween(_ context.Context, start, end string) ([]storage.DailyEvent, error) {
	c.calls++
	return c.events, c.err
}

func TestAggregatorSingleFetch(t *testing.T) {
	src := &countingSource{events: []storage.DailyEvent{
		ev("2024-05-02", storage.EventOpenedLate),
		ev("2024-05-05", storage.EventNeverOpened),
	}}
	agg := NewAggregator(src, zerolog.Nop())

	days, err := agg.BuildCalendar(context.Background(), "2024-05-01", "2024-05-31")
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("应只查询一次, 实际 %d", src.calls)
	}
	if len(days) != 31 || days[1].Status != storage.EventOpenedLate || days[4].Status != storage.EventNeverOpened {
		t.Fatalf("日历内容不正确: %d 天", len(days))
	}
}

func TestAggregatorLongRangesAndErrors(t *testing.T) {
	src := &countingSource{}
	agg := NewAggregator(src, zerolog.Nop())

	days, err := agg.BuildCalendar(context.Background(), "2024-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("长区间不应报错: %v", err)
	}
	if len(days) != 731 {
		t.Fatalf("两年应有 731 天, 实际 %d", len(days))
	}

	src.calls = 0
	if _, err := agg.BuildCalendar(context.Background(), "2024-05-08", "2024-05-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("倒序区间应报错, 实际 %v", err)
	}
	if src.calls != 0 {
		t.Fatal("非法区间不应访问存储")
	}

	src.err = errors.New("db down")
	if _, err := agg.BuildCalendar(context.Background(), "2024-05-01", "2024-05-02"); err == nil || errors.Is(err, ErrInvalidRange) {
		t.Fatalf("存储错误应原样上抛, 实际 %v", err)
	}
}

func TestSummary(t *testing.T) {
	days, err := Build("2024-05-01", "2024-05-05", []storage.DailyEvent{
		ev("2024-05-01", storage.EventFullyOpen),
		ev("2024-05-02", storage.EventFullyOpen),
		ev("2024-05-03", storage.EventOpenedLate),
		ev("2024-05-04", storage.EventOutsideHours),
	})
	if err != nil {
		t.Fatal(err)
	}
	stats := Summary(days)
	if stats.Days != 5 || stats.RankedDays != 3 {
		t.Fatalf("统计不正确: %+v", stats)
	}
	if got := stats.Availability.String(); got != "66.7" {
		t.Fatalf("可用率应为 66.7, 实际 %s", got)
	}
	if stats.Counts[storage.StatusNotOperatingDay] != 2 {
		t.Fatalf("应有 2 个非营业日, 实际 %d", stats.Counts[storage.StatusNotOperatingDay])
	}

	if !Summary(nil).Availability.IsZero() {
		t.Fatal("空日历可用率应为 0")
	}
}
