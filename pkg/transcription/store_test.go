package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_IngestResult_PartialThenStableLeavesOnlyStable(t *testing.T) {
	s := NewStore()
	s.OpenSession("sess-1", DefaultConfig())

	require.NoError(t, s.IngestResult(Result{
		SessionID: "sess-1", ResultID: "r1", IsPartial: true,
		Words: []Word{{Content: "hel"}},
	}))
	require.NoError(t, s.IngestResult(Result{
		SessionID: "sess-1", ResultID: "r1", IsPartial: false,
		Words:    []Word{{Content: "hello", Speaker: "spk1"}},
		Segments: []SpeakerSegment{{Speaker: "spk1", StartTime: 0, EndTime: 1, Confidence: 0.9}},
	}))

	snap, err := s.GetSessionResults("sess-1", true)
	require.NoError(t, err)
	assert.Len(t, snap.StableResults, 1)
	assert.Empty(t, snap.Partials)
}

func TestStore_IngestResult_TracksSpeakerProfileIncrementalMean(t *testing.T) {
	s := NewStore()
	s.OpenSession("sess-1", DefaultConfig())

	for _, conf := range []float64{0.8, 1.0} {
		require.NoError(t, s.IngestResult(Result{
			SessionID: "sess-1", ResultID: "r" + string(rune(int('0')+int(conf*10))), IsPartial: false,
			Segments: []SpeakerSegment{{Speaker: "spk1", StartTime: 0, EndTime: 2, Confidence: conf}},
		}))
	}

	snap, err := s.GetSessionResults("sess-1", false)
	require.NoError(t, err)
	profile := snap.SpeakerProfiles["spk1"]
	assert.Equal(t, 2, profile.TotalSegments)
	assert.InDelta(t, 0.9, profile.AverageConfidence, 1e-9)
	assert.InDelta(t, 4.0, profile.TotalDuration, 1e-9)
	assert.Nil(t, snap.Partials)
}

func TestStore_GetSessionResults_UnknownSessionErrors(t *testing.T) {
	s := NewStore()
	_, err := s.GetSessionResults("missing", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_CleanupSession_DropsState(t *testing.T) {
	s := NewStore()
	s.OpenSession("sess-1", DefaultConfig())
	s.CleanupSession("sess-1")

	_, err := s.GetSessionResults("sess-1", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
