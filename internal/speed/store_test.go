package speed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetAbsent(t *testing.T) {
	s := NewStore()
	st, ok := s.Get(42)
	assert.False(t, ok)
	assert.Nil(t, st)
	assert.Equal(t, 0, s.Len())
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := NewStore()
	s.Upsert(1, newTrackState(1, 10))
	replacement := newTrackState(1, 20)
	s.Upsert(1, replacement)

	require.Equal(t, 1, s.Len())
	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestStore_EvictStale(t *testing.T) {
	s := NewStore()
	for id, lastSeen := range map[int64]int64{1: 100, 2: 70, 3: 69, 4: 10} {
		st := newTrackState(id, lastSeen)
		s.Upsert(id, st)
	}

	var hooked []int64
	s.OnEvict(func(st *TrackState) { hooked = append(hooked, st.TrackID) })

	// Threshold 30 at frame 100: 70 is exactly 30 old and survives.
	evicted := s.EvictStale(100, 30)
	assert.Equal(t, []int64{3, 4}, evicted)
	assert.ElementsMatch(t, []int64{3, 4}, hooked)
	assert.Equal(t, []int64{1, 2}, s.IDs())

	assert.Empty(t, s.EvictStale(100, 30))
}

func TestStore_DeleteSkipsHook(t *testing.T) {
	s := NewStore()
	s.Upsert(5, newTrackState(5, 0))
	s.OnEvict(func(*TrackState) { t.Fatal("hook must not run on Delete") })
	s.Delete(5)
	assert.Equal(t, 0, s.Len())
}

func TestTrackState_PushTrailCapped(t *testing.T) {
	st := newTrackState(1, 0)
	for i := 0; i < 50; i++ {
		st.pushTrail(Point{X: float64(i)}, 5)
		assert.LessOrEqual(t, len(st.Trail), 5)
	}
	assert.Equal(t, []Point{{X: 45}, {X: 46}, {X: 47}, {X: 48}, {X: 49}}, st.Trail)
}

func TestTrackState_SampleHistoryBounded(t *testing.T) {
	st := newTrackState(1, 0)
	for i := 0; i < MaxSampleHistory+10; i++ {
		st.pushSample(float64(i))
	}
	samples := st.Samples()
	require.Len(t, samples, MaxSampleHistory)
	assert.Equal(t, 10.0, samples[0])

	// Samples returns a copy.
	samples[0] = -1
	assert.Equal(t, 10.0, st.Samples()[0])
}
