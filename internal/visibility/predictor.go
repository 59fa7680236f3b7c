// Package visibility predicts when the Sun, Moon and planets are above an
// observer's horizon.
package visibility

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/transform"
)

// Source supplies horizontal coordinates. The engine implements it.
type Source interface {
	Horizontal(ctx context.Context, body catalog.Body, t time.Time, obs transform.Observer) (transform.Horizontal, error)
}

// Event is a body's sky position at a notable moment. Angles are degrees.
type Event struct {
	Time     time.Time `json:"time"`
	Altitude float64   `json:"altitude"`
	Azimuth  float64   `json:"azimuth"`
}

// Window is one interval above the minimum altitude. Rise is nil when the
// body was already up at the start of the scan and Set is nil when it is
// still up at the end.
type Window struct {
	Rise            *Event  `json:"rise,omitempty"`
	Culmination     Event   `json:"culmination"`
	Set             *Event  `json:"set,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// BodyVisibility holds the predicted windows for one body.
type BodyVisibility struct {
	Body    catalog.Body `json:"body"`
	Windows []Window     `json:"windows"`
	Error   string       `json:"error,omitempty"`
}

// Request holds the parameters for a visibility prediction.
type Request struct {
	Observer     transform.Observer
	Bodies       []catalog.Body
	Start        time.Time
	HorizonHours float64
	MinAltitude  float64 // degrees
	MaxWindows   int
}

// DefaultBodies are scanned when a request names none.
var DefaultBodies = append([]catalog.Body{catalog.Sun, catalog.Moon},
	catalog.Mercury, catalog.Venus, catalog.Mars, catalog.Jupiter, catalog.Saturn, catalog.Uranus, catalog.Neptune)

const (
	coarseStep = 10 * time.Minute
	fineStep   = time.Minute
)

// Predict scans every requested body. Each body is processed in its own
// goroutine, bounded by a semaphore; failures are reported per body.
func Predict(ctx context.Context, src Source, req Request) []BodyVisibility {
	bodies := req.Bodies
	if len(bodies) == 0 {
		bodies = DefaultBodies
	}
	if req.MaxWindows <= 0 {
		req.MaxWindows = 10
	}

	results := make([]BodyVisibility, len(bodies))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, body := range bodies {
		wg.Add(1)
		go func(idx int, b catalog.Body) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = BodyVisibility{Body: b, Error: "cancelled"}
				return
			}

			windows, err := predictBody(ctx, src, req, b)
			if err != nil {
				results[idx] = BodyVisibility{Body: b, Error: err.Error()}
				return
			}
			results[idx] = BodyVisibility{Body: b, Windows: windows}
		}(i, body)
	}

	wg.Wait()
	return results
}

// scanner samples one body's altitude.
type scanner struct {
	ctx  context.Context
	src  Source
	body catalog.Body
	obs  transform.Observer
	min  float64
}

func (s scanner) at(t time.Time) (Event, error) {
	h, err := s.src.Horizontal(s.ctx, s.body, t, s.obs)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Time:     t,
		Altitude: h.Altitude * 180 / math.Pi,
		Azimuth:  h.Azimuth * 180 / math.Pi,
	}, nil
}

func (s scanner) above(e Event) bool { return e.Altitude >= s.min }

// predictBody finds every window for one body.
func predictBody(ctx context.Context, src Source, req Request, body catalog.Body) ([]Window, error) {
	s := scanner{ctx: ctx, src: src, body: body, obs: req.Observer, min: req.MinAltitude}
	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))

	// The first sample must succeed; later failures only skip a step.
	if _, err := s.at(req.Start); err != nil {
		return nil, fmt.Errorf("%s: %w", body, err)
	}

	var windows []Window
	t := req.Start
	for t.Before(end) && len(windows) < req.MaxWindows {
		if ctx.Err() != nil {
			return windows, nil
		}

		e, err := s.at(t)
		if err != nil {
			t = t.Add(coarseStep)
			continue
		}

		if s.above(e) {
			w, windowEnd := s.refine(t, req.Start, end)
			if w != nil {
				windows = append(windows, *w)
			}
			t = windowEnd.Add(coarseStep)
		} else {
			t = t.Add(coarseStep)
		}
	}

	return windows, nil
}

// refine scans at the fine step around a coarse hit. It backs up one coarse
// step to locate the rise, then follows the body to its set. It returns the
// window and the time the scan stopped.
func (s scanner) refine(coarseHit, windowStart, windowEnd time.Time) (*Window, time.Time) {
	searchStart := coarseHit.Add(-coarseStep)
	if searchStart.Before(windowStart) {
		searchStart = windowStart
	}

	var (
		w        Window
		started  bool
		wasAbove bool
		last     Event
	)

	t := searchStart
	for !t.After(windowEnd) {
		if s.ctx.Err() != nil {
			break
		}

		e, err := s.at(t)
		if err != nil {
			t = t.Add(fineStep)
			continue
		}
		above := s.above(e)

		if above && !started {
			started = true
			w.Culmination = e
			if t.After(windowStart) {
				rise := e
				w.Rise = &rise
			}
		}
		if above && started && e.Altitude > w.Culmination.Altitude {
			w.Culmination = e
		}
		if !above && wasAbove && started {
			set := e
			w.Set = &set
			break
		}

		wasAbove = above
		last = e
		t = t.Add(fineStep)
	}

	if !started {
		return nil, t
	}

	from := windowStart
	if w.Rise != nil {
		from = w.Rise.Time
	}
	to := last.Time
	if w.Set != nil {
		to = w.Set.Time
	}
	w.DurationSeconds = to.Sub(from).Seconds()
	return &w, to
}
