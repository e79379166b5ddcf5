package iot

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/alarm"
)

// AlarmClock exposes the alarm scheduler (C2) as an IoT thing, so the same
// SetAlarm/CancelAlarm/EnableAlarm surface is reachable whether triggered
// locally or via a downlink iot command, mirroring
// original_source/main/iot/things/alarm.cc's AlarmIot: a thing whose methods
// forward straight into the alarm manager, parameterized by
// seconds-from-now plus an optional repeat type/days mask rather than by
// hour/minute, since that's the wire shape voice/downlink callers send.
type AlarmClock struct {
	store *alarm.Store
	now   func() time.Time
}

// NewAlarmClock wraps store as an IoT thing. now defaults to time.Now.
func NewAlarmClock(store *alarm.Store, now func() time.Time) *AlarmClock {
	if now == nil {
		now = time.Now
	}
	return &AlarmClock{store: store, now: now}
}

func (a *AlarmClock) Name() string { return "AlarmClock" }

func (a *AlarmClock) Invoke(ctx context.Context, method string, params map[string]any) error {
	switch method {
	case "SetAlarm":
		return a.setAlarm(ctx, params)
	case "CancelAlarm":
		name, err := stringParam(params, "alarm_name")
		if err != nil {
			return err
		}
		return a.store.Cancel(ctx, name)
	case "EnableAlarm":
		name, err := stringParam(params, "alarm_name")
		if err != nil {
			return err
		}
		enabled, err := boolParam(params, "enabled")
		if err != nil {
			return err
		}
		return a.store.Enable(ctx, name, enabled)
	default:
		return fmt.Errorf("iot: AlarmClock has no method %q", method)
	}
}

// setAlarm translates the "fire in N seconds, then recur" wire shape into
// the Store's hour/minute-of-day recurrence API: the target civil time is
// computed once, at invocation time, from now+seconds_from_now.
func (a *AlarmClock) setAlarm(ctx context.Context, params map[string]any) error {
	seconds, err := intParam(params, "second_from_now")
	if err != nil {
		return err
	}
	name, err := stringParam(params, "alarm_name")
	if err != nil {
		return err
	}
	repeatType := 0
	if v, err := intParam(params, "repeat_type"); err == nil {
		repeatType = v
	}
	repeatDays := 0
	if v, err := intParam(params, "repeat_days"); err == nil {
		repeatDays = v
	}

	if alarm.Repeat(repeatType) == alarm.Once {
		return a.store.SetRelative(ctx, name, seconds)
	}

	target := a.now().Add(time.Duration(seconds) * time.Second)
	hour, minute := target.Hour(), target.Minute()
	switch alarm.Repeat(repeatType) {
	case alarm.Daily:
		return a.store.SetDaily(ctx, name, hour, minute)
	case alarm.Weekly:
		return a.store.SetWeekly(ctx, name, hour, minute, uint8(repeatDays))
	case alarm.Workdays:
		return a.store.SetWorkdays(ctx, name, hour, minute)
	case alarm.Weekends:
		return a.store.SetWeekends(ctx, name, hour, minute)
	default:
		return fmt.Errorf("iot: AlarmClock unknown repeat_type %d", repeatType)
	}
}

func (a *AlarmClock) State() any {
	list := a.store.List()
	out := make([]map[string]any, 0, len(list))
	for _, al := range list {
		out = append(out, map[string]any{
			"name":      al.Name,
			"next_fire": al.NextFire,
			"repeat":    al.Repeat.String(),
			"enabled":   al.Enabled,
		})
	}
	return out
}
