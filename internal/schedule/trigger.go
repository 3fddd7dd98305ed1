// Package schedule provides the publishing schedule: trigger parsing and a
// timer-driven job scheduler.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger computes firing times. Next returns the first fire time strictly
// after the given instant, so a job firing at exactly 08:00:00 is next due
// at 08:00 the following day, never twice for the same instant.
//
// cron.Schedule satisfies this interface; all parsed triggers are built on
// it.
type Trigger interface {
	Next(after time.Time) time.Time
}

var (
	timeOfDayRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	weekdayRe   = regexp.MustCompile(`^([a-z]{3}) (\d{1,2}):(\d{2})$`)
	intervalRe  = regexp.MustCompile(`^every (.+)$`)
)

var weekdays = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseSpec parses a schedule spec into a Trigger. Accepted forms:
//
//	"08:00"        daily at 08:00 UTC
//	"sun 20:00"    weekday-restricted daily time, UTC
//	"every 6h"     fixed interval (any time.Duration string)
//	"0 8 * * *"    raw five-field cron expression, UTC
//
// Specs are parsed once at startup; an invalid spec is a startup error, not
// a fire-time error.
func ParseSpec(spec string) (Trigger, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" {
		return nil, fmt.Errorf("empty schedule spec")
	}

	if m := timeOfDayRe.FindStringSubmatch(s); m != nil {
		return parseCron(fmt.Sprintf("%s %s * * *", m[2], m[1]), spec)
	}

	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		dow, ok := weekdays[m[1]]
		if !ok {
			return nil, fmt.Errorf("invalid schedule spec %q: unknown weekday %q", spec, m[1])
		}
		return parseCron(fmt.Sprintf("%s %s * * %d", m[3], m[2], dow), spec)
	}

	if m := intervalRe.FindStringSubmatch(s); m != nil {
		d, err := time.ParseDuration(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid schedule spec %q: %w", spec, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("invalid schedule spec %q: interval below one second", spec)
		}
		return cron.Every(d), nil
	}

	// Fall through to a raw cron expression.
	return parseCron(s, spec)
}

func parseCron(expr, original string) (Trigger, error) {
	sched, err := cron.ParseStandard("CRON_TZ=UTC " + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule spec %q: %w", original, err)
	}
	return sched, nil
}
