// Package capacity computes concurrent demand on a facility for one day.
//
// Usage is piecewise constant between reservation boundaries, so it is
// enough to evaluate it at event points: every window contributes an
// arrival (+quantity) at its start and a departure (-quantity) at its end.
// Departures sort before arrivals at the same instant, which keeps
// back-to-back windows from being counted as concurrent.
package capacity

import (
	"sort"

	"github.com/neighborhood/facility-booking/internal/model"
)

// Demand is the capacity-relevant part of a reservation.
type Demand struct {
	Window   model.Window
	Quantity int
}

// Result describes the outcome of evaluating a candidate demand.
//
// Peak is the highest concurrent usage inside the candidate window with the
// candidate included, and PeakWindow the first sub-interval where it is
// reached.  Available is the largest quantity the candidate could have
// requested for the same window without exceeding capacity.
type Result struct {
	Admissible bool
	Capacity   int
	Peak       int
	PeakWindow model.Window
	Available  int
}

type event struct {
	at    model.TimeOfDay
	delta int
}

// Evaluate decides whether candidate fits next to the active demands
// without pushing concurrent usage above capacity at any instant of the
// candidate window.  Demands that do not overlap the candidate cannot change
// usage inside it and are ignored.
func Evaluate(capacity int, active []Demand, candidate Demand) Result {
	events := make([]event, 0, 2*len(active)+2)
	for _, d := range active {
		if d.Quantity <= 0 || !model.Overlaps(d.Window, candidate.Window) {
			continue
		}
		events = append(events, event{d.Window.Start, d.Quantity}, event{d.Window.End, -d.Quantity})
	}
	events = append(events,
		event{candidate.Window.Start, candidate.Quantity},
		event{candidate.Window.End, -candidate.Quantity},
	)
	sortEvents(events)

	res := Result{Capacity: capacity}
	usage := 0
	for i, ev := range events {
		usage += ev.delta
		if !candidate.Window.Contains(ev.at) {
			continue
		}
		// Only the last event at an instant reflects the settled usage.
		if i+1 < len(events) && events[i+1].at == ev.at {
			continue
		}
		if usage > res.Peak {
			res.Peak = usage
			end := candidate.Window.End
			if i+1 < len(events) && events[i+1].at < end {
				end = events[i+1].at
			}
			res.PeakWindow = model.Window{Start: ev.at, End: end}
		}
	}

	res.Admissible = res.Peak <= capacity
	res.Available = capacity - (res.Peak - candidate.Quantity)
	if res.Available < 0 {
		res.Available = 0
	}
	return res
}

// Segment is a stretch of the day with constant usage.
type Segment struct {
	Window model.Window `json:"window"`
	Usage  int          `json:"usage"`
}

// Timeline returns the usage profile produced by the given demands.
// Stretches with no usage are omitted and neighbouring stretches with equal
// usage are merged.
func Timeline(active []Demand) []Segment {
	events := make([]event, 0, 2*len(active))
	for _, d := range active {
		if d.Quantity <= 0 {
			continue
		}
		events = append(events, event{d.Window.Start, d.Quantity}, event{d.Window.End, -d.Quantity})
	}
	sortEvents(events)

	var out []Segment
	usage := 0
	for i, ev := range events {
		usage += ev.delta
		if i+1 == len(events) || events[i+1].at == ev.at || usage == 0 {
			continue
		}
		w := model.Window{Start: ev.at, End: events[i+1].at}
		if n := len(out); n > 0 && out[n-1].Usage == usage && out[n-1].Window.End == w.Start {
			out[n-1].Window.End = w.End
			continue
		}
		out = append(out, Segment{Window: w, Usage: usage})
	}
	return out
}

// Peak returns the highest usage in the timeline, or zero for an empty day.
func Peak(segments []Segment) int {
	peak := 0
	for _, s := range segments {
		if s.Usage > peak {
			peak = s.Usage
		}
	}
	return peak
}

func sortEvents(events []event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].delta < events[j].delta
	})
}
