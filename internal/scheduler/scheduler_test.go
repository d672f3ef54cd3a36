package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("间隔为 0 时应返回错误")
	}
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToBucket: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 2, 10, 15, 0, 0, time.UTC)
	want := time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("期望 %s, 实际 %s", want, got)
	}
	if got := s.bucketStart(want.Add(3 * time.Second)); !got.Equal(want) {
		t.Fatalf("bucket 应截断到整点, 实际 %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s, _ := New(Options{Interval: 24 * time.Hour}, zerolog.Nop())
	now := time.Date(2024, 1, 2, 10, 15, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("未对齐时应为 now+interval, 实际 %s", got)
	}
}

func TestRunOnStartFiresImmediately(t *testing.T) {
	s, _ := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			calls.Add(1)
			cancel()
			return errors.New("tick errors are logged only")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("期望 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler 未在取消后退出")
	}
	if calls.Load() != 1 {
		t.Fatalf("启动时应执行一次, 实际 %d", calls.Load())
	}
}

func TestRunTicksOnInterval(t *testing.T) {
	s, _ := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		if calls.Add(1) == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, 实际 %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("期望 2 次执行, 实际 %d", calls.Load())
	}
}
