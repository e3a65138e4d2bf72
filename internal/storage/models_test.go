package storage

import (
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	valid := ResourceSchedule{
		URL:             "https://example.com",
		ClosedIndicator: "closed",
		OperatingDays:   []int{0, 6},
		OpenTime:        "09:00",
		CloseTime:       "21:00",
		Timezone:        "UTC",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	bad := []func(s *ResourceSchedule){
		func(s *ResourceSchedule) { s.URL = "" },
		func(s *ResourceSchedule) { s.ClosedIndicator = "" },
		func(s *ResourceSchedule) { s.OpenTime = "9:00" },
		func(s *ResourceSchedule) { s.CloseTime = "25:00" },
		func(s *ResourceSchedule) { s.OpenTime, s.CloseTime = "22:00", "08:00" },
		func(s *ResourceSchedule) { s.OperatingDays = []int{7} },
		func(s *ResourceSchedule) { s.Timezone = "Mars/Olympus" },
	}
	for i, mutate := range bad {
		s := valid
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("case %d: 应校验失败", i)
		}
	}
}

func TestDayBoundsAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// spring-forward day is 23 hours long
	start, end, err := DayBounds("2024-03-10", loc)
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("夏令时当天应为 23 小时, 实际 %s", got)
	}
	if start.Location() != time.UTC {
		t.Fatal("边界应以 UTC 返回")
	}

	if _, _, err := DayBounds("10/03/2024", loc); err == nil {
		t.Fatal("非法日期应报错")
	}
}

func TestEventTypeHelpers(t *testing.T) {
	if StatusNotOperatingDay.Valid() {
		t.Fatal("not_operating_day 不可持久化")
	}
	if !EventOutsideHours.Valid() || EventOutsideHours.Anomaly() {
		t.Fatal("outside_hours 合法但不是异常")
	}
	for _, et := range []EventType{EventNeverOpened, EventOpenedLate, EventClosedEarly} {
		if !et.Anomaly() {
			t.Fatalf("%s 应视为异常", et)
		}
	}
}
