package storage

import (
	"time"

	"github.com/san-kum/simhost/internal/dynamo"
)

type Sample struct {
	Time    float64
	State   dynamo.State
	Control float64
}

// Recording collects the trajectory of one session. Only the most recent
// max samples are kept.
type Recording struct {
	Meta RunMetadata

	buf   []Sample
	start int
	max   int
}

func NewRecording(meta RunMetadata, max int) *Recording {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if max <= 0 {
		max = 1
	}
	return &Recording{Meta: meta, max: max}
}

func (r *Recording) Add(t float64, x dynamo.State, u float64) {
	s := Sample{Time: t, State: x.Clone(), Control: u}
	if len(r.buf) < r.max {
		r.buf = append(r.buf, s)
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % r.max
	r.Meta.Dropped++
}

func (r *Recording) Len() int { return len(r.buf) }

// Samples returns the kept samples in time order.
func (r *Recording) Samples() []Sample {
	out := make([]Sample, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
