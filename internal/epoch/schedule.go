package epoch

import (
	"fmt"
	"time"
)

// Schedule maps wall-clock time onto board epochs. Epoch n covers
// [n*Window, (n+1)*Window) since the Unix epoch and uses board n mod GameCount.
type Schedule struct {
	Window    time.Duration
	GameCount int64
}

func (s Schedule) Validate() error {
	if s.Window < time.Second || s.Window%time.Second != 0 {
		return fmt.Errorf("epoch window %s must be a whole number of seconds", s.Window)
	}
	if s.GameCount <= 0 {
		return fmt.Errorf("game count must be positive")
	}
	return nil
}

func (s Schedule) windowSeconds() int64 {
	return int64(s.Window / time.Second)
}

// Number is the absolute epoch containing t.
func (s Schedule) Number(t time.Time) int64 {
	return t.Unix() / s.windowSeconds()
}

func (s Schedule) BoardIndex(number int64) int64 {
	return number % s.GameCount
}

// ChainIndex is the chain link consumed by a board. Links are used from the
// end of the chain backwards, so within one pass a revealed link only
// discloses links that were already consumed. Board indexes wrap every
// GameCount epochs and the next pass reuses the same links; a link revealed
// in an earlier pass is the link of its board again. Boards are published
// with their commitment, so the reuse exposes layouts only, never round seeds.
func (s Schedule) ChainIndex(boardIndex int64) int64 {
	return s.GameCount - 1 - boardIndex
}

func (s Schedule) Bounds(number int64) (start, end time.Time) {
	w := s.windowSeconds()
	return time.Unix(number*w, 0).UTC(), time.Unix((number+1)*w, 0).UTC()
}

// Remaining is the time left in the epoch containing t.
func (s Schedule) Remaining(t time.Time) time.Duration {
	_, end := s.Bounds(s.Number(t))
	return end.Sub(t)
}
