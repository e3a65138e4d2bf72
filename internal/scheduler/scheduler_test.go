package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSession struct {
	mu      sync.Mutex
	openErr error
	opened  int
	closed  int
}

func (f *fakeSession) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f.openErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

func TestStopBeforeStart(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	if err := s.Stop(); err != nil {
		t.Fatalf("未启动时 Stop 应安全: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("状态应为 stopped, 实际 %s", s.State())
	}
}

func TestStartFailedSessionOpen(t *testing.T) {
	s := New(Options{Interval: time.Minute, RunImmediately: true}, zerolog.Nop())
	session := &fakeSession{openErr: errors.New("chrome not found")}

	var ticks atomic.Int32
	err := s.Start(context.Background(), session, func(context.Context, time.Time) error {
		ticks.Add(1)
		return nil
	})
	if err == nil {
		t.Fatal("会话打开失败时 Start 应返回错误")
	}
	if s.State() != StateStopped {
		t.Fatalf("失败后应回到 stopped, 实际 %s", s.State())
	}
	if _, closed := session.counts(); closed != 1 {
		t.Fatalf("部分打开的会话应被释放, closed=%d", closed)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("启动失败后 Stop 应安全: %v", err)
	}
	if ticks.Load() != 0 {
		t.Fatal("启动失败不应执行 tick")
	}
}

func TestStartRunsImmediateTick(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true, RunImmediately: true}, zerolog.Nop())
	session := &fakeSession{}

	var ticks atomic.Int32
	if err := s.Start(context.Background(), session, func(context.Context, time.Time) error {
		ticks.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	waitFor(t, func() bool { return ticks.Load() == 1 })

	if s.State() != StateRunning {
		t.Fatalf("状态应为 running, 实际 %s", s.State())
	}
	if err := s.Start(context.Background(), session, nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("重复启动应返回 ErrAlreadyStarted, 实际 %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	opened, closed := session.counts()
	if opened != 1 || closed != 1 {
		t.Fatalf("会话应打开并关闭各一次: opened=%d closed=%d", opened, closed)
	}
	if s.State() != StateStopped {
		t.Fatalf("Stop 后应为 stopped, 实际 %s", s.State())
	}
}

func TestTickErrorsDoNotStopLoop(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var ticks atomic.Int32
	if err := s.Start(context.Background(), nil, func(context.Context, time.Time) error {
		if ticks.Add(1) == 2 {
			panic("probe exploded")
		}
		return errors.New("store unavailable")
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return ticks.Load() >= 4 })

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	after := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatal("Stop 后不应再执行 tick")
	}
}

func TestStopWaitsForInFlightTick(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	started := make(chan struct{})
	var finished atomic.Bool
	var tickErr atomic.Value
	if err := s.Start(context.Background(), &fakeSession{}, func(ctx context.Context, _ time.Time) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		if ctx.Err() != nil {
			tickErr.Store(ctx.Err())
		}
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	<-started
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if !finished.Load() {
		t.Fatal("Stop 应等待进行中的 tick 完成")
	}
	if tickErr.Load() != nil {
		t.Fatal("进行中的 tick 不应被取消")
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 5, 1, 10, 7, 30, 0, time.UTC)
	if got, want := s.nextTick(now), time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("下一个对齐时间应为 %s, 实际 %s", want, got)
	}
	onBoundary := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(15 * time.Minute)) {
		t.Fatalf("边界上应跳到下一个桶, 实际 %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("桶起点不正确: %s", got)
	}

	free := New(Options{Interval: time.Minute}, zerolog.Nop())
	if got := free.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("不对齐时应为 now+interval, 实际 %s", got)
	}
}
