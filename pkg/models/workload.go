package models

import (
	"fmt"
	"time"
)

// Dimensions identifies a workload container.
type Dimensions struct {
	ProjectID      string
	Location       string
	Cluster        string
	Namespace      string
	ControllerName string
	ControllerType string
	ContainerName  string
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s:%s/%s",
		d.ProjectID, d.Location, d.Cluster, d.Namespace,
		d.ControllerType, d.ControllerName, d.ContainerName)
}

// Window is the aggregation period a metric value was computed over.
type Window struct {
	Start time.Time
	End   time.Time
}

// Key is the join key of a row: window plus dimension tuple.
// Times are stored as unix seconds so Key stays comparable.
type Key struct {
	Start int64
	End   int64
	Dimensions
}

// KeyOf builds the join key for a window and dimension tuple.
func KeyOf(w Window, d Dimensions) Key {
	return Key{Start: w.Start.Unix(), End: w.End.Unix(), Dimensions: d}
}

// Window returns the key's window in UTC.
func (k Key) Window() Window {
	return Window{Start: time.Unix(k.Start, 0).UTC(), End: time.Unix(k.End, 0).UTC()}
}

// Less orders keys by window, then by dimension tuple.
func (k Key) Less(o Key) bool {
	if k.Start != o.Start {
		return k.Start < o.Start
	}
	if k.End != o.End {
		return k.End < o.End
	}
	a, b := k.Dimensions, o.Dimensions
	for _, p := range [][2]string{
		{a.ProjectID, b.ProjectID},
		{a.Location, b.Location},
		{a.Cluster, b.Cluster},
		{a.Namespace, b.Namespace},
		{a.ControllerName, b.ControllerName},
		{a.ControllerType, b.ControllerType},
		{a.ContainerName, b.ContainerName},
	} {
		if p[0] != p[1] {
			return p[0] < p[1]
		}
	}
	return false
}

// QueryWindow is the interval requested from the metrics API.
type QueryWindow struct {
	Window
	AlignmentPeriod time.Duration
}

// NewQueryWindow derives the query interval the exporter runs over: from
// midnight `days` days ago until midnight yesterday, aligned over `days` days.
func NewQueryWindow(now time.Time, days int) QueryWindow {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return QueryWindow{
		Window: Window{
			Start: midnight.AddDate(0, 0, -days),
			End:   midnight.AddDate(0, 0, -1),
		},
		AlignmentPeriod: time.Duration(days) * 24 * time.Hour,
	}
}

// RunDate truncates now to the UTC calendar day. It is the idempotency key
// stamped on every recommendation row.
func RunDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return RunDate(a).Equal(RunDate(b))
}
