package heuristics

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The engine derives date and day-count hints from free text when the
// model answered conversationally instead of filling structured
// arguments. Only a small fixed rule set is supported; anything fancier
// belongs to the model, not to this fallback.

const (
	DefaultDayCount = 3
	MaxDayCount     = 7
	MinDayCount     = 1
)

var relativeOffsets = []struct {
	keyword string
	days    int
}{
	// "next week" must be probed before "this week" would ever match a
	// bare "week", and multi-word keywords before their substrings.
	{"next week", 7},
	{"this week", 0},
	{"tomorrow", 1},
	{"yesterday", -1},
	{"today", 0},
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	inDaysPattern   = regexp.MustCompile(`in\s+(\d+)\s+days?`)
	dayCountPattern = regexp.MustCompile(`(\d+)[\s-]?days?`)
)

// DeriveDate resolves a date from the most recent utterance carrying
// any date signal. Priority inside one utterance: relative keyword,
// then weekday name, then an explicit "in N days". No signal at all
// resolves to today.
func DeriveDate(utterances []string, now time.Time) time.Time {
	for i := len(utterances) - 1; i >= 0; i-- {
		text := strings.ToLower(utterances[i])
		if offset, ok := relativeOffset(text); ok {
			return startOfDay(now.AddDate(0, 0, offset))
		}
		if day, ok := weekdayIn(text); ok {
			return startOfDay(now.AddDate(0, 0, daysUntil(now.Weekday(), day)))
		}
		if m := inDaysPattern.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return startOfDay(now.AddDate(0, 0, n))
			}
		}
	}
	return startOfDay(now)
}

// DeriveDayCount resolves a plan length from the most recent utterance
// mentioning one: an explicit "<N> day(s)" wins over the literal word
// "week" (7). The result is clamped to [1,7]; nothing matching means 3.
func DeriveDayCount(utterances []string) int {
	for i := len(utterances) - 1; i >= 0; i-- {
		text := strings.ToLower(utterances[i])
		if m := dayCountPattern.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return ClampDayCount(n)
			}
		}
		if strings.Contains(text, "week") {
			return MaxDayCount
		}
	}
	return DefaultDayCount
}

// ClampDayCount bounds n to the supported [1,7] window.
func ClampDayCount(n int) int {
	if n < MinDayCount {
		return MinDayCount
	}
	if n > MaxDayCount {
		return MaxDayCount
	}
	return n
}

func relativeOffset(text string) (int, bool) {
	for _, rel := range relativeOffsets {
		if strings.Contains(text, rel.keyword) {
			return rel.days, true
		}
	}
	return 0, false
}

// weekdayIn picks the weekday mentioned earliest in the text, so an
// utterance naming two days resolves the same way every run.
func weekdayIn(text string) (time.Weekday, bool) {
	first := -1
	var found time.Weekday
	for name, day := range weekdays {
		idx := strings.Index(text, name)
		if idx < 0 {
			continue
		}
		if first < 0 || idx < first {
			first = idx
			found = day
		}
	}
	return found, first >= 0
}

// daysUntil resolves the next future occurrence of target; if today
// already is target, the answer is a full week out.
func daysUntil(from, target time.Weekday) int {
	delta := (int(target) - int(from) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return delta
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
