package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/interval"
)

// TimeOfDay is a wall-clock time with minute granularity, stored as minutes
// since midnight. It carries no date and no timezone; rules are interpreted
// in the doctor's local time.
type TimeOfDay int

func NewTimeOfDay(hour, min int) TimeOfDay {
	return TimeOfDay(hour*60 + min)
}

// ParseTimeOfDay parses "15:04" formatted strings.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On anchors the time of day to the given calendar date.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTimeOfDay(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RecurrenceKind discriminates weekly rules from date-specific overrides.
type RecurrenceKind string

const (
	KindWeekly       RecurrenceKind = "weekly"
	KindDateOverride RecurrenceKind = "date_override"
)

// Recurrence is a tagged variant: a rule repeats weekly on DayOfWeek XOR
// applies to the single calendar Date.
type Recurrence struct {
	Kind      RecurrenceKind `gorm:"column:recurrence_kind;type:varchar(20);not null;index" json:"kind"`
	DayOfWeek *time.Weekday  `gorm:"column:day_of_week;type:smallint" json:"day_of_week,omitempty"`
	Date      *time.Time     `gorm:"column:override_date;type:date" json:"date,omitempty"`
}

func Weekly(day time.Weekday) Recurrence {
	return Recurrence{Kind: KindWeekly, DayOfWeek: &day}
}

func OnDate(date time.Time) Recurrence {
	d := atMidnight(date)
	return Recurrence{Kind: KindDateOverride, Date: &d}
}

func (r Recurrence) Validate() error {
	switch r.Kind {
	case KindWeekly:
		if r.DayOfWeek == nil || r.Date != nil {
			return ErrInvalidRecurrence
		}
		if *r.DayOfWeek < time.Sunday || *r.DayOfWeek > time.Saturday {
			return ErrInvalidRecurrence
		}
	case KindDateOverride:
		if r.Date == nil || r.DayOfWeek != nil {
			return ErrInvalidRecurrence
		}
	default:
		return ErrInvalidRecurrence
	}
	return nil
}

// AppliesTo reports whether the recurrence covers the given calendar date.
func (r Recurrence) AppliesTo(date time.Time) bool {
	switch r.Kind {
	case KindWeekly:
		return r.DayOfWeek != nil && date.Weekday() == *r.DayOfWeek
	case KindDateOverride:
		return r.Date != nil && sameDate(*r.Date, date)
	}
	return false
}

// Rule is one availability window for one doctor: either a recurring weekly
// template or a date-specific override. IsAvailable=false marks a blackout
// that subtracts from whatever the recurring rules would open on that date.
type Rule struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`

	DoctorID uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`

	Recurrence Recurrence `gorm:"embedded" json:"recurrence"`

	StartTime        TimeOfDay `gorm:"column:start_time;type:smallint;not null" json:"start_time"`
	EndTime          TimeOfDay `gorm:"column:end_time;type:smallint;not null" json:"end_time"`
	SlotDurationMins int       `gorm:"column:slot_duration_mins;not null;default:30" json:"slot_duration_mins"`
	IsAvailable      bool      `gorm:"column:is_available;not null;default:true" json:"is_available"`
}

func (Rule) TableName() string {
	return "scheduling.availability_rules"
}

func (r *Rule) Validate() error {
	if r.DoctorID == uuid.Nil {
		return ErrDoctorRequired
	}
	if err := r.Recurrence.Validate(); err != nil {
		return err
	}
	if r.StartTime >= r.EndTime {
		return ErrInvalidWindow
	}
	if r.SlotDurationMins <= 0 {
		return ErrInvalidSlotDuration
	}
	return nil
}

// Window anchors the rule's time-of-day span to a calendar date.
func (r *Rule) Window(date time.Time) interval.Interval {
	return interval.New(r.StartTime.On(date), r.EndTime.On(date))
}

// TimeSlot is a derived, never persisted subdivision of an open availability
// window. Produced fresh (or from cache) on every slot listing.
type TimeSlot struct {
	StartsAt     time.Time `json:"starts_at"`
	DurationMins int       `json:"duration_mins"`
	IsAvailable  bool      `json:"is_available"`
	IsBooked     bool      `json:"is_booked"`
}

func (s TimeSlot) Interval() interval.Interval {
	return interval.FromDuration(s.StartsAt, s.DurationMins)
}

func atMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
