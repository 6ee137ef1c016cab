package task

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger computes fire times for a task. Next returns the first fire
// time strictly after the given instant.
type Trigger interface {
	Next(after time.Time) time.Time
}

// DailyAt fires once a day at the given local time.
func DailyAt(hour, minute int) Trigger {
	return dailyAt{hour: hour, minute: minute}
}

type dailyAt struct {
	hour, minute int
}

func (d dailyAt) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.hour, d.minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// WeeklyAt fires once a week on the given weekday at the given local time.
func WeeklyAt(day time.Weekday, hour, minute int) Trigger {
	return weeklyAt{day: day, hour: hour, minute: minute}
}

type weeklyAt struct {
	day          time.Weekday
	hour, minute int
}

func (w weeklyAt) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), w.hour, w.minute, 0, 0, after.Location())
	days := (int(w.day) - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(after) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Every fires at a fixed interval, measured from the previous fire.
// A missed window does not queue a backlog: the next fire is always one
// interval past the instant the scheduler evaluates it.
func Every(interval time.Duration) Trigger {
	return every{interval: interval}
}

type every struct {
	interval time.Duration
}

func (e every) Next(after time.Time) time.Time {
	return after.Add(e.interval)
}

// EveryBetween fires at a fixed interval but only inside a daily window.
// Slots land at window start + k*interval; the window start is inclusive
// and the end exclusive, so a slot coinciding with the end does not fire.
func EveryBetween(interval time.Duration, startHour, startMinute, endHour, endMinute int) Trigger {
	return everyBetween{
		interval: interval,
		start:    time.Duration(startHour)*time.Hour + time.Duration(startMinute)*time.Minute,
		end:      time.Duration(endHour)*time.Hour + time.Duration(endMinute)*time.Minute,
	}
}

type everyBetween struct {
	interval   time.Duration
	start, end time.Duration
}

func (e everyBetween) Next(after time.Time) time.Time {
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	for {
		windowStart := day.Add(e.start)
		windowEnd := day.Add(e.end)
		if after.Before(windowStart) {
			return windowStart
		}
		// First slot strictly after `after` within today's window.
		elapsed := after.Sub(windowStart)
		slots := elapsed/e.interval + 1
		next := windowStart.Add(slots * e.interval)
		if next.Before(windowEnd) {
			return next
		}
		day = day.AddDate(0, 0, 1)
		after = day.Add(-time.Nanosecond) // next day: window start qualifies again
	}
}

// Cron builds a trigger from a standard five-field cron expression,
// using the cron library's schedule computation.
func Cron(spec string) (Trigger, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return cronTrigger{sched: sched}, nil
}

type cronTrigger struct {
	sched cron.Schedule
}

func (c cronTrigger) Next(after time.Time) time.Time {
	return c.sched.Next(after)
}
