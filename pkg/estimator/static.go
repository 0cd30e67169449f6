package estimator

import (
	"context"
	"image"
	"sync"

	"github.com/charlie0129/formcoach/pkg/pose"
)

// Static replays a fixed list of landmark sets, one per Estimate call. Nil
// entries mean "no person". After the list is exhausted it starts over if
// Loop is set and returns nil otherwise.
type Static struct {
	Frames []*pose.LandmarkSet
	Loop   bool

	mu   sync.Mutex
	next int
}

// NewStatic returns a Static estimator.
func NewStatic(loop bool, frames ...*pose.LandmarkSet) *Static {
	return &Static{Frames: frames, Loop: loop}
}

func (s *Static) Estimate(ctx context.Context, _ image.Image) (*pose.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.Frames) {
		if !s.Loop || len(s.Frames) == 0 {
			return nil, nil
		}
		s.next = 0
	}
	lm := s.Frames[s.next]
	s.next++
	return lm, nil
}

func (s *Static) Close() error { return nil }
