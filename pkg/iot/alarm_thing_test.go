package iot

import (
	"context"
	"testing"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/alarm"
	"github.com/haivivi/chatgear-orchestrator/pkg/kv"
)

func newTestAlarmClock(t *testing.T, now time.Time) *AlarmClock {
	t.Helper()
	store, err := alarm.NewStore(context.Background(), kv.NewMemory(nil), alarm.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("alarm.NewStore: %v", err)
	}
	return NewAlarmClock(store, func() time.Time { return now })
}

func TestAlarmClockSetAlarmOnce(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	ac := newTestAlarmClock(t, now)
	ctx := context.Background()

	err := ac.Invoke(ctx, "SetAlarm", map[string]any{
		"second_from_now": float64(60),
		"alarm_name":      "coffee",
	})
	if err != nil {
		t.Fatalf("Invoke SetAlarm: %v", err)
	}

	states := ac.State().([]map[string]any)
	if len(states) != 1 {
		t.Fatalf("State() = %+v, want 1 alarm", states)
	}
	if states[0]["name"] != "coffee" || states[0]["repeat"] != "once" {
		t.Fatalf("State()[0] = %+v", states[0])
	}
}

func TestAlarmClockSetAlarmDaily(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	ac := newTestAlarmClock(t, now)
	ctx := context.Background()

	// fires 2 hours from now, every day -> target civil time 12:00.
	err := ac.Invoke(ctx, "SetAlarm", map[string]any{
		"second_from_now": float64(2 * 3600),
		"alarm_name":      "standup",
		"repeat_type":     float64(alarm.Daily),
	})
	if err != nil {
		t.Fatalf("Invoke SetAlarm: %v", err)
	}

	got, err := ac.store.Get("standup")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if got.Repeat != alarm.Daily {
		t.Fatalf("Repeat = %v, want Daily", got.Repeat)
	}
	if got.NextFire.Hour() != 12 || got.NextFire.Minute() != 0 {
		t.Fatalf("NextFire = %v, want 12:00", got.NextFire)
	}
}

func TestAlarmClockCancelAndEnable(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	ac := newTestAlarmClock(t, now)
	ctx := context.Background()

	if err := ac.Invoke(ctx, "SetAlarm", map[string]any{
		"second_from_now": float64(60),
		"alarm_name":      "coffee",
	}); err != nil {
		t.Fatalf("Invoke SetAlarm: %v", err)
	}

	if err := ac.Invoke(ctx, "EnableAlarm", map[string]any{
		"alarm_name": "coffee",
		"enabled":    false,
	}); err != nil {
		t.Fatalf("Invoke EnableAlarm: %v", err)
	}
	got, err := ac.store.Get("coffee")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if got.Enabled {
		t.Fatalf("Enabled = true, want false")
	}

	if err := ac.Invoke(ctx, "CancelAlarm", map[string]any{"alarm_name": "coffee"}); err != nil {
		t.Fatalf("Invoke CancelAlarm: %v", err)
	}
	if _, err := ac.store.Get("coffee"); err == nil {
		t.Fatalf("Get after CancelAlarm: want error, got nil")
	}
}

func TestAlarmClockUnknownMethod(t *testing.T) {
	ac := newTestAlarmClock(t, time.Now())
	if err := ac.Invoke(context.Background(), "Explode", nil); err == nil {
		t.Fatalf("Invoke with unknown method: want error, got nil")
	}
}
