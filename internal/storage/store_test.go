package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/simhost/internal/dynamo"
)

func TestRecordingKeepsLatest(t *testing.T) {
	rec := NewRecording(RunMetadata{SimType: "cartpole"}, 3)
	for i := 0; i < 5; i++ {
		rec.Add(float64(i), dynamo.State{float64(i)}, 0)
	}

	samples := rec.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{samples[0].Time, samples[1].Time, samples[2].Time})
	assert.Equal(t, 2, rec.Meta.Dropped)
}

func TestRecordingCopiesState(t *testing.T) {
	rec := NewRecording(RunMetadata{}, 10)
	x := dynamo.State{1, 2}
	rec.Add(0, x, 0)
	x[0] = 99

	assert.Equal(t, 1.0, rec.Samples()[0].State[0])
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	require.NoError(t, store.Init())

	rec := NewRecording(RunMetadata{
		SessionID: "abc",
		SimType:   "cartpole",
		Period:    1.0 / 60,
		Modes:     []string{"lqr"},
		Metrics:   map[string]float64{"control_effort": 1.5},
	}, 100)
	rec.Add(0, dynamo.State{0, 3.14, 0, 0}, 1.25)
	rec.Add(0.5, dynamo.State{0.1, 3.15, 0.2, -0.1}, -2)

	id, err := store.Save(rec)
	require.NoError(t, err)

	meta, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.ID)
	assert.Equal(t, "cartpole", meta.SimType)
	assert.Equal(t, 2, meta.Samples)
	assert.InDelta(t, 0.5, meta.Duration, 1e-12)
	assert.Equal(t, []string{"lqr"}, meta.Modes)
	assert.Equal(t, 1.5, meta.Metrics["control_effort"])

	states, times, err := store.LoadStates(id)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, times)
	require.Len(t, states, 2)
	assert.Equal(t, []float64{0.1, 3.15, 0.2, -0.1, -2}, states[1])
}

func TestListNewestFirst(t *testing.T) {
	store := New(t.TempDir())

	runs, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	older := NewRecording(RunMetadata{SimType: "pendulum", Timestamp: time.Now().Add(-time.Hour)}, 1)
	newer := NewRecording(RunMetadata{SimType: "cartpole"}, 1)
	_, err = store.Save(older)
	require.NoError(t, err)
	_, err = store.Save(newer)
	require.NoError(t, err)

	runs, err = store.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "cartpole", runs[0].SimType)
	assert.Equal(t, "pendulum", runs[1].SimType)
}
