// Package alarm implements the persistent multi-alarm scheduler (C2): up to
// ten named alarms, each either one-shot or recurring (daily, weekly,
// workdays, weekends), persisted across reboot and re-armed with a single
// timer for the soonest enabled alarm.
//
// Semantics are grounded 1:1 on original_source/main/AlarmClock/AlarmClock.cc
// (GetProximateAlarm, SetAlarm, CancelAlarm, OnAlarm, RestartTimerForNextAlarm)
// reimplemented over pkg/kv instead of ESP-IDF NVS settings.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/kv"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors, matching the taxonomy in kv.ErrNotFound's style.
var (
	// ErrInvalidArgument is returned for malformed names, times, or masks.
	ErrInvalidArgument = errors.New("alarm: invalid argument")
	// ErrCapacity is returned when all ten slots are occupied.
	ErrCapacity = errors.New("alarm: store is full")
	// ErrNotFound is returned when an alarm name does not exist.
	ErrNotFound = errors.New("alarm: not found")
)

// MaxAlarms is the fixed number of persisted slots, matching the original
// firmware's kMaxAlarms.
const MaxAlarms = 10

// Repeat is the recurrence kind for an alarm.
type Repeat int

const (
	// Once fires a single time and is then removed from the store.
	Once Repeat = iota
	// Daily fires every day at the same civil time.
	Daily
	// Weekly fires on the weekdays set in DaysMask.
	Weekly
	// Workdays fires Monday through Friday.
	Workdays
	// Weekends fires Saturday and Sunday.
	Weekends
)

// String returns the persisted/wire name of the repeat kind.
func (r Repeat) String() string {
	switch r {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Workdays:
		return "workdays"
	case Weekends:
		return "weekends"
	default:
		return "once"
	}
}

// workdaysMask and weekendsMask are bit i = time.Weekday(i), matching the
// original firmware's day-bitmask convention (bit 0 = Sunday).
const (
	workdaysMask uint8 = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday
	weekendsMask uint8 = 1<<time.Sunday | 1<<time.Saturday
)

// Alarm is a single scheduled alarm.
type Alarm struct {
	Name     string
	NextFire time.Time
	Repeat   Repeat
	DaysMask uint8 // used by Weekly, Workdays and Weekends
	Enabled  bool
}

func (a Alarm) clone() Alarm {
	return a
}

// Store is the persistent, capacity-bounded alarm scheduler. It holds at
// most MaxAlarms alarms, keeps exactly one timer armed for the soonest
// enabled alarm, and persists every mutation through a kv.Store.
type Store struct {
	mu  sync.Mutex
	kv  kv.Store
	loc *time.Location
	log logging.Logger
	now func() time.Time

	slots      [MaxAlarms]*Alarm
	nameToSlot map[string]int

	timer    *time.Timer
	onFire   func()
	ring     bool
	ringName string
}

// Options configures a Store.
type Options struct {
	// Location is the civil-calendar location used for all recurrence math.
	// Defaults to time.Local.
	Location *time.Location
	// Logger receives diagnostic output. Defaults to logging.Noop().
	Logger logging.Logger
	// Now, if set, overrides time.Now for testing.
	Now func() time.Time
	// OnFire is invoked (off the lock) whenever the armed timer fires and an
	// alarm rings. The orchestrator uses this to enqueue C7's pre-emption
	// handoff onto the task serializer.
	OnFire func()
}

// NewStore loads persisted alarms from store, replays boot-time catch-up
// for overdue recurring alarms, clears overdue one-shot alarms, and arms
// the timer for the soonest remaining alarm.
func NewStore(ctx context.Context, store kv.Store, opts Options) (*Store, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		kv:         kv.Namespace(store, "alarm_clock"),
		loc:        loc,
		log:        log,
		now:        now,
		nameToSlot: make(map[string]int, MaxAlarms),
		onFire:     opts.OnFire,
	}

	if err := s.loadLocked(ctx); err != nil {
		return nil, fmt.Errorf("alarm: load: %w", err)
	}

	s.mu.Lock()
	s.catchUpLocked(ctx, now())
	s.clearOverdueLocked(ctx, now())
	s.restartTimerLocked(now())
	s.mu.Unlock()

	return s, nil
}

// slotKey is relative to the Store's "alarm_clock" namespace (see
// kv.Namespace in NewStore); it never repeats that segment itself.
func slotKey(i int) kv.Key {
	return kv.Key{fmt.Sprintf("alarm_%d", i)}
}

// persistedAlarm is the on-disk row shape, msgpack-encoded to keep the
// persisted rows compact on flash-constrained devices — the same tradeoff
// the teacher's wire types make with vmihailenco/msgpack elsewhere.
type persistedAlarm struct {
	Name     string `msgpack:"name"`
	NextFire int64  `msgpack:"next_fire"` // unix seconds
	Repeat   string `msgpack:"repeat"`
	DaysMask uint8  `msgpack:"days_mask"`
	Enabled  bool   `msgpack:"enabled"`
}

// loadLocked reads all ten slots from the kv store. A row that fails to
// decode is treated as corrupted and the slot is left free: the alarm it
// held is dropped, not restored with default values.
func (s *Store) loadLocked(ctx context.Context) error {
	for i := range MaxAlarms {
		raw, err := s.kv.Get(ctx, slotKey(i))
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		a, ok := decodeAlarm(raw)
		if !ok || a.Name == "" {
			s.log.WarnPrintf("alarm: slot %d corrupted, treating as free", i)
			continue
		}
		cp := a
		s.slots[i] = &cp
		s.nameToSlot[a.Name] = i
	}
	return nil
}

func decodeAlarm(raw []byte) (Alarm, bool) {
	var p persistedAlarm
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return Alarm{}, false
	}
	if p.Name == "" {
		return Alarm{}, false
	}
	rep, ok := parseRepeat(p.Repeat)
	if !ok {
		return Alarm{}, false
	}
	return Alarm{
		Name:     p.Name,
		NextFire: time.Unix(p.NextFire, 0),
		Repeat:   rep,
		DaysMask: p.DaysMask,
		Enabled:  p.Enabled,
	}, true
}

func parseRepeat(name string) (Repeat, bool) {
	switch name {
	case "once", "":
		return Once, true
	case "daily":
		return Daily, true
	case "weekly":
		return Weekly, true
	case "workdays":
		return Workdays, true
	case "weekends":
		return Weekends, true
	default:
		return 0, false
	}
}

func (s *Store) persistLocked(ctx context.Context, i int) error {
	a := s.slots[i]
	if a == nil {
		return s.kv.Delete(ctx, slotKey(i))
	}
	raw, err := msgpack.Marshal(persistedAlarm{
		Name:     a.Name,
		NextFire: a.NextFire.Unix(),
		Repeat:   a.Repeat.String(),
		DaysMask: a.DaysMask,
		Enabled:  a.Enabled,
	})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, slotKey(i), raw)
}

// findFreeSlotLocked returns the index of the first unoccupied slot, or -1.
func (s *Store) findFreeSlotLocked() int {
	for i := range MaxAlarms {
		if s.slots[i] == nil {
			return i
		}
	}
	return -1
}

func validateName(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("%w: name must be 1-64 bytes", ErrInvalidArgument)
	}
	return nil
}

func validateClock(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: hour/minute out of range", ErrInvalidArgument)
	}
	return nil
}

// SetRelative schedules name to fire `seconds` from now, one-shot.
func (s *Store) SetRelative(ctx context.Context, name string, seconds int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if seconds <= 0 {
		return fmt.Errorf("%w: seconds must be positive", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return s.upsertLocked(ctx, Alarm{
		Name:     name,
		NextFire: now.Add(time.Duration(seconds) * time.Second),
		Repeat:   Once,
		Enabled:  true,
	})
}

// SetDaily schedules name to fire every day at hour:minute local civil time.
func (s *Store) SetDaily(ctx context.Context, name string, hour, minute int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateClock(hour, minute); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextDailyFire(s.now(), s.loc, hour, minute)
	return s.upsertLocked(ctx, Alarm{
		Name:     name,
		NextFire: next,
		Repeat:   Daily,
		Enabled:  true,
	})
}

// SetWeekly schedules name to fire at hour:minute on the weekdays set in
// daysMask (bit i = time.Weekday(i), bit 0 = Sunday).
func (s *Store) SetWeekly(ctx context.Context, name string, hour, minute int, daysMask uint8) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateClock(hour, minute); err != nil {
		return err
	}
	if daysMask == 0 {
		return fmt.Errorf("%w: days mask must not be empty", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextWeekdayFire(s.now(), s.loc, hour, minute, daysMask)
	return s.upsertLocked(ctx, Alarm{
		Name:     name,
		NextFire: next,
		Repeat:   Weekly,
		DaysMask: daysMask,
		Enabled:  true,
	})
}

// SetWorkdays schedules name to fire Monday-Friday at hour:minute.
func (s *Store) SetWorkdays(ctx context.Context, name string, hour, minute int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateClock(hour, minute); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextWeekdayFire(s.now(), s.loc, hour, minute, workdaysMask)
	return s.upsertLocked(ctx, Alarm{
		Name:     name,
		NextFire: next,
		Repeat:   Workdays,
		DaysMask: workdaysMask,
		Enabled:  true,
	})
}

// SetWeekends schedules name to fire Saturday and Sunday at hour:minute.
func (s *Store) SetWeekends(ctx context.Context, name string, hour, minute int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateClock(hour, minute); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextWeekdayFire(s.now(), s.loc, hour, minute, weekendsMask)
	return s.upsertLocked(ctx, Alarm{
		Name:     name,
		NextFire: next,
		Repeat:   Weekends,
		DaysMask: weekendsMask,
		Enabled:  true,
	})
}

// upsertLocked inserts or replaces the alarm named a.Name, enforcing the
// MaxAlarms capacity on insert, persists it, and rearms the timer.
func (s *Store) upsertLocked(ctx context.Context, a Alarm) error {
	if i, ok := s.nameToSlot[a.Name]; ok {
		cp := a
		s.slots[i] = &cp
		if err := s.persistLocked(ctx, i); err != nil {
			return err
		}
		s.restartTimerLocked(s.now())
		return nil
	}
	i := s.findFreeSlotLocked()
	if i < 0 {
		return ErrCapacity
	}
	cp := a
	s.slots[i] = &cp
	s.nameToSlot[a.Name] = i
	if err := s.persistLocked(ctx, i); err != nil {
		return err
	}
	s.restartTimerLocked(s.now())
	return nil
}

// Enable toggles whether a named alarm is armed without altering its
// schedule.
func (s *Store) Enable(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.nameToSlot[name]
	if !ok {
		return ErrNotFound
	}
	s.slots[i].Enabled = enabled
	if err := s.persistLocked(ctx, i); err != nil {
		return err
	}
	s.restartTimerLocked(s.now())
	return nil
}

// Cancel removes a named alarm entirely, freeing its slot.
func (s *Store) Cancel(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.nameToSlot[name]
	if !ok {
		return ErrNotFound
	}
	s.slots[i] = nil
	delete(s.nameToSlot, name)
	if err := s.persistLocked(ctx, i); err != nil {
		return err
	}
	s.restartTimerLocked(s.now())
	return nil
}

// Get returns a copy of the named alarm.
func (s *Store) Get(name string) (Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.nameToSlot[name]
	if !ok {
		return Alarm{}, ErrNotFound
	}
	return s.slots[i].clone(), nil
}

// List returns a copy of every alarm currently in the store, in slot order.
func (s *Store) List() []Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alarm, 0, MaxAlarms)
	for _, a := range s.slots {
		if a != nil {
			out = append(out, a.clone())
		}
	}
	return out
}

// Proximate returns the soonest enabled alarm whose NextFire is strictly
// after now, and whether one exists. It does not mutate the store.
func (s *Store) Proximate(now time.Time) (Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proximateLocked(now)
}

func (s *Store) proximateLocked(now time.Time) (Alarm, bool) {
	var best *Alarm
	for _, a := range s.slots {
		if a == nil || !a.Enabled {
			continue
		}
		if !a.NextFire.After(now) {
			continue
		}
		if best == nil || a.NextFire.Before(best.NextFire) {
			best = a
		}
	}
	if best == nil {
		return Alarm{}, false
	}
	return best.clone(), true
}

// ClearOverdue removes any one-shot alarm whose NextFire has already passed
// and which is no longer eligible to ring (used after a ring has been
// consumed, and defensively on boot).
func (s *Store) ClearOverdue(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearOverdueLocked(ctx, now)
}

func (s *Store) clearOverdueLocked(ctx context.Context, now time.Time) error {
	for i, a := range s.slots {
		if a == nil || a.Repeat != Once {
			continue
		}
		if !a.NextFire.After(now) {
			s.slots[i] = nil
			delete(s.nameToSlot, a.Name)
			if err := s.persistLocked(ctx, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// catchUpLocked advances any recurring alarm whose NextFire is in the past
// (e.g. the device was off across one or more firings) to its next future
// occurrence, without ringing it, matching AlarmClock.cc's boot-time
// "ClearOverdueAlarm" / constructor replay behavior.
func (s *Store) catchUpLocked(ctx context.Context, now time.Time) {
	for i, a := range s.slots {
		if a == nil || a.Repeat == Once {
			continue
		}
		for !a.NextFire.After(now) {
			a.NextFire = advance(a.NextFire, s.loc, a.Repeat, a.DaysMask)
		}
		_ = s.persistLocked(ctx, i)
	}
}

// restartTimerLocked rearms the single timer for the soonest enabled alarm,
// matching RestartTimerForNextAlarm's "one timer for the whole store"
// invariant.
func (s *Store) restartTimerLocked(now time.Time) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	best, ok := s.proximateLocked(now)
	if !ok {
		return
	}
	d := best.NextFire.Sub(now)
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.fire)
}

// fire is invoked by the armed timer. It finds the first enabled, overdue
// alarm, reschedules or removes it, rearms the timer for the next alarm,
// and notifies the orchestrator via OnFire.
func (s *Store) fire() {
	ctx := context.Background()
	s.mu.Lock()
	now := s.now()
	var fired *Alarm
	var firedIdx = -1
	for i, a := range s.slots {
		if a == nil || !a.Enabled {
			continue
		}
		if !a.NextFire.After(now) {
			fired = a
			firedIdx = i
			break
		}
	}
	if fired == nil {
		s.restartTimerLocked(now)
		s.mu.Unlock()
		return
	}

	s.ring = true
	s.ringName = fired.Name

	if fired.Repeat == Once {
		s.slots[firedIdx] = nil
		delete(s.nameToSlot, fired.Name)
	} else {
		fired.NextFire = advance(fired.NextFire, s.loc, fired.Repeat, fired.DaysMask)
	}
	if err := s.persistLocked(ctx, firedIdx); err != nil {
		s.log.ErrorPrintf("alarm: persist after fire: %v", err)
	}
	s.restartTimerLocked(now)
	hook := s.onFire
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// TakeRing reports and clears the name of the alarm that most recently rang,
// if any has not yet been consumed by the orchestrator.
func (s *Store) TakeRing() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ring {
		return "", false
	}
	name := s.ringName
	s.ring = false
	s.ringName = ""
	return name, true
}

// Close stops the armed timer. It does not close the underlying kv.Store,
// which the caller owns.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}
