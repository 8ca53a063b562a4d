// Package schedfile reads the bot's schedule file: recipient, bot token, an
// optional one-time startup message and weekly scheduled messages.
//
// Example:
//
//	USER_ID=42
//	BOT_TOKEN=123:abc
//	START_MESSAGE="""Hello"""
//	TUE-08:30-"Good morning"
//	FRI-17:00-"""
//	Weekend!
//	  (indented lines are kept)
//	"""
package schedfile

import (
	"fmt"
	"time"
)

// Weekday numbers days Monday-first: MON=0 ... SUN=6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayCodes = [...]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// ParseWeekday maps a three-letter uppercase code to a Weekday.
func ParseWeekday(code string) (Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return Weekday(i), true
		}
	}
	return 0, false
}

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayCodes[w]
}

// Time converts to Go's Sunday-first numbering.
func (w Weekday) Time() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

// Entry is one weekly scheduled message.
//
// Hour and Minute are stored as written; range checks happen when the entry is
// turned into a trigger.
type Entry struct {
	Weekday Weekday
	Hour    int
	Minute  int
	Body    string

	// Line is the 1-based line of the entry header (0 when built in code).
	Line int
}

// Label renders the entry's trigger as "MON-09:00".
func (e Entry) Label() string {
	return fmt.Sprintf("%s-%02d:%02d", e.Weekday, e.Hour, e.Minute)
}

type Config struct {
	RecipientID int64
	Credential  string
	// StartupMessage is nil when START_MESSAGE is absent; it may point to "".
	StartupMessage *string
	Entries        []Entry
}
