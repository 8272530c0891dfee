// Package interval implements half-open time interval arithmetic for the
// scheduling engine. All intervals are [Start, End): an interval ending at
// 10:00 does not overlap one starting at 10:00.
package interval

import (
	"fmt"
	"sort"
	"time"
)

type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// FromDuration builds the interval covering mins minutes from start.
func FromDuration(start time.Time, mins int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(mins) * time.Minute)}
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsValid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format("2006-01-02 15:04"), iv.End.Format("2006-01-02 15:04"))
}

// Merge collapses overlapping or touching intervals into a sorted minimal set.
// Invalid (empty or inverted) intervals are dropped.
func Merge(ivs []Interval) []Interval {
	valid := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	merged := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract removes every interval in blocked from every interval in open,
// returning the remaining open intervals in chronological order.
func Subtract(open, blocked []Interval) []Interval {
	result := Merge(open)
	for _, b := range Merge(blocked) {
		var next []Interval
		for _, o := range result {
			if !o.Overlaps(b) {
				next = append(next, o)
				continue
			}
			if o.Start.Before(b.Start) {
				next = append(next, Interval{Start: o.Start, End: b.Start})
			}
			if b.End.Before(o.End) {
				next = append(next, Interval{Start: b.End, End: o.End})
			}
		}
		result = next
	}
	return result
}

// Partition splits the interval into consecutive sub-intervals of mins
// minutes. A trailing remainder shorter than mins is discarded.
func (iv Interval) Partition(mins int) []Interval {
	if mins <= 0 || !iv.IsValid() {
		return nil
	}
	step := time.Duration(mins) * time.Minute
	var parts []Interval
	for cur := iv.Start; !cur.Add(step).After(iv.End); cur = cur.Add(step) {
		parts = append(parts, Interval{Start: cur, End: cur.Add(step)})
	}
	return parts
}
