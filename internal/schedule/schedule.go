// Package schedule decides whether a campaign may run at a given instant.
package schedule

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

// Defaults applied to any field a present config leaves empty.
const (
	DefaultTimezone  = "UTC"
	DefaultStartTime = "09:00"
	DefaultEndTime   = "17:00"
)

var DefaultDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Window is a resolved schedule config.
type Window struct {
	Location *time.Location
	Days     map[time.Weekday]bool
	Start    int // seconds since midnight
	End      int
}

// Resolve fills defaults and parses cfg. A nil cfg resolves to a nil
// Window, meaning no restriction.
func Resolve(cfg *model.ScheduleConfig) (*Window, error) {
	if cfg == nil {
		return nil, nil
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, appErrors.NewInvalidConfiguration("schedule.timezone", fmt.Sprintf("unknown zone %q", tz))
	}

	days := cfg.Days
	if len(days) == 0 {
		days = DefaultDays
	}
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, appErrors.NewInvalidConfiguration("schedule.days", fmt.Sprintf("unknown day %q", d))
		}
		set[wd] = true
	}

	start, err := parseClock(cfg.StartTime, DefaultStartTime)
	if err != nil {
		return nil, appErrors.NewInvalidConfiguration("schedule.start_time", err.Error())
	}
	end, err := parseClock(cfg.EndTime, DefaultEndTime)
	if err != nil {
		return nil, appErrors.NewInvalidConfiguration("schedule.end_time", err.Error())
	}
	return &Window{Location: loc, Days: set, Start: start, End: end}, nil
}

// Contains reports whether now falls inside the window. Both bounds are
// inclusive. A window whose end is before its start runs overnight; the part
// after midnight belongs to the day the window opened.
func (w *Window) Contains(now time.Time) bool {
	if w == nil {
		return true
	}
	local := now.In(w.Location)
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if w.Start <= w.End {
		return w.Days[local.Weekday()] && sec >= w.Start && sec <= w.End
	}
	if sec >= w.Start {
		return w.Days[local.Weekday()]
	}
	if sec <= w.End {
		return w.Days[(local.Weekday()+6)%7]
	}
	return false
}

// Evaluate reports whether a campaign with cfg is runnable at now.
//
// A config that cannot be resolved fails open: the result is true and the
// returned error describes the problem so the caller can log it.
func Evaluate(cfg *model.ScheduleConfig, now time.Time) (bool, error) {
	w, err := Resolve(cfg)
	if err != nil {
		return true, err
	}
	return w.Contains(now), nil
}

func parseClock(s, def string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = def
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
		}
	}
	return 0, fmt.Errorf("cannot parse %q as HH:MM", s)
}
