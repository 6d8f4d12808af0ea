// Package view holds the client's map view state and renders frames from it.
// State is a plain value: transitions return a new State and Render has no
// side effects, so the server never keeps per-client view state.
package view

import (
	"errors"
	"fmt"
	"time"

	"parkwatch/internal/batch"
	"parkwatch/internal/domain"
	"parkwatch/internal/occupancy"
)

// MainView is the campus-wide view name
const MainView = "MAIN"

// DefaultLiveWindow is how old a position may be and still show in live mode
const DefaultLiveWindow = 10 * time.Second

var ErrUnknownAction = errors.New("unknown view action")

type State struct {
	// BatchIndex selects a snapshot; nil follows the newest one.
	BatchIndex *int   `json:"batchIndex"`
	Live       bool   `json:"live"`
	ActiveView string `json:"activeView"`
}

func Initial() State {
	return State{ActiveView: MainView}
}

// Prev steps one snapshot back, starting from the newest when following.
func (s State) Prev(n int) State {
	if n <= 1 {
		return s
	}
	idx := n - 2
	if s.BatchIndex != nil {
		idx = *s.BatchIndex - 1
	}
	s.BatchIndex = ptr(max(idx, 0))
	return s
}

// Next steps one snapshot forward. When following it jumps to the oldest.
func (s State) Next(n int) State {
	if n <= 1 {
		return s
	}
	idx := 0
	if s.BatchIndex != nil {
		idx = min(*s.BatchIndex+1, n-1)
	}
	s.BatchIndex = ptr(idx)
	return s
}

func (s State) SetLive(live bool) State {
	s.Live = live
	return s
}

func (s State) ToggleLive() State {
	s.Live = !s.Live
	return s
}

// SetView switches the camera to MAIN or a catalog zone.
func (s State) SetView(name string, catalog domain.Catalog) (State, error) {
	if name != MainView {
		if _, err := catalog.Zone(name); err != nil {
			return s, err
		}
	}
	s.ActiveView = name
	return s, nil
}

// Reconcile runs after the snapshot list is recomputed: a selection at or past
// the newest snapshot goes back to following it.
func (s State) Reconcile(n int) State {
	if s.BatchIndex != nil && *s.BatchIndex >= n-1 {
		s.BatchIndex = nil
	}
	return s
}

// Action is a named transition as sent by clients
type Action struct {
	Type string `json:"type"`
	Live *bool  `json:"live,omitempty"`
	View string `json:"view,omitempty"`
}

// Apply performs a named transition against n snapshots.
func (s State) Apply(a Action, n int, catalog domain.Catalog) (State, error) {
	switch a.Type {
	case "prev":
		return s.Prev(n), nil
	case "next":
		return s.Next(n), nil
	case "toggleLive":
		return s.ToggleLive(), nil
	case "setLive":
		if a.Live == nil {
			return s, fmt.Errorf("setLive requires live")
		}
		return s.SetLive(*a.Live), nil
	case "setView":
		return s.SetView(a.View, catalog)
	case "reconcile", "":
		return s.Reconcile(n), nil
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}

type Marker struct {
	domain.Position
	Sector domain.Sector `json:"sector"`
}

// Frame is everything a map client needs to draw one view
type Frame struct {
	State      State              `json:"state"`
	Markers    []Marker           `json:"markers"`
	BatchTime  *time.Time         `json:"batchTime"`
	BatchCount int                `json:"batchCount"`
	CanStep    bool               `json:"canStep"`
	Occupancy  []domain.Occupancy `json:"occupancy"`
	Camera     domain.MapView     `json:"camera"`
}

// Render builds the frame for state over snapshots at time now.
func Render(s State, snapshots []domain.Snapshot, catalog domain.Catalog, now time.Time, liveWindow time.Duration) Frame {
	n := len(snapshots)
	latest := batch.Latest(snapshots)

	var current domain.Snapshot
	switch {
	case s.Live:
		current = batch.Fresh(latest, now, liveWindow)
	case s.BatchIndex != nil && *s.BatchIndex >= 0 && *s.BatchIndex < n:
		current = snapshots[*s.BatchIndex]
	default:
		current = latest
	}

	markers := make([]Marker, 0, len(current.Positions))
	for _, p := range current.Positions {
		markers = append(markers, Marker{Position: p, Sector: domain.HeadingSector(p.Heading)})
	}

	var batchTime *time.Time
	if ts := current.Latest(); !ts.IsZero() {
		batchTime = &ts
	}

	camera := catalog.MainView
	if z, err := catalog.Zone(s.ActiveView); err == nil {
		camera = z.View
	}

	return Frame{
		State:      s,
		Markers:    markers,
		BatchTime:  batchTime,
		BatchCount: n,
		CanStep:    n > 1,
		Occupancy:  occupancy.Ordered(occupancy.Classify(current, catalog), catalog),
		Camera:     camera,
	}
}

func ptr(i int) *int { return &i }
