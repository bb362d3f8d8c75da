package models

import "time"

// Session describes when briefs are recorded and when raw stream moments are
// worth replaying. Offsets are measured from local midnight.
type Session struct {
	Location       *time.Location
	PreBeginBuffer time.Duration
	BeginRecord    time.Duration
	EndRecord      time.Duration
}

func (s Session) local(t time.Time) (time.Time, time.Duration, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	h, m, sec := t.Clock()
	tod := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	wd := t.Weekday()
	return t, tod, wd != time.Saturday && wd != time.Sunday
}

// IsRecordTime reports whether a window starting at t should be committed.
func (s Session) IsRecordTime(t time.Time) bool {
	_, tod, weekday := s.local(t)
	return weekday && tod >= s.BeginRecord && tod <= s.EndRecord
}

// IsStreamTime reports whether a raw event at t should be dispatched.
func (s Session) IsStreamTime(t time.Time) bool {
	_, tod, weekday := s.local(t)
	return weekday && tod >= s.PreBeginBuffer && tod <= s.EndRecord
}

// NextStreamStart returns the next pre-begin boundary at or after t: the same
// day's when t is before it, otherwise the following day's. Weekends are left
// to IsStreamTime.
func (s Session) NextStreamStart(t time.Time) time.Time {
	lt, tod, _ := s.local(t)
	y, m, d := lt.Date()
	if tod >= s.PreBeginBuffer {
		d++
	}
	return time.Date(y, m, d, 0, 0, 0, 0, lt.Location()).Add(s.PreBeginBuffer)
}
