package markov

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
)

func TestEngine_BoundaryEmptyStates(t *testing.T) {
	e := New(DefaultConfig())
	assert.Equal(t, 0.0, e.GetProbability("a", "b"))
}

func TestEngine_BoundaryShortTrace(t *testing.T) {
	e := New(DefaultConfig())
	assert.Equal(t, 0.0, e.ScoreTrace(nil))
	assert.Equal(t, 0.0, e.ScoreTrace([]auditevent.Event{{"action": "a"}}))
}

func TestEngine_AddExpireSymmetry(t *testing.T) {
	e := New(DefaultConfig())
	events := []auditevent.Event{
		{"principal": "gateway", "action": "act", "outcome": "OK"},
		{"principal": "gateway", "action": "act2", "outcome": "OK"},
	}
	e.AddTrace(events)
	require.Equal(t, 1, e.WindowSize())

	e.ExpireOldest()
	assert.Equal(t, 0, e.WindowSize())

	for _, c := range e.edgeCounts {
		assert.Equal(t, 0, c)
	}
	for _, c := range e.outCounts {
		assert.Equal(t, 0, c)
	}
}

func TestEngine_Smoothing(t *testing.T) {
	e := New(Config{Alpha: 0.1, WindowCapacity: 2000})
	events := []auditevent.Event{
		{"principal": "gateway", "action": "act", "outcome": "OK"}, // service:act:OK ("A")
		{"principal": "user", "action": "act", "outcome": "OK"},    // user:act:OK ("B")
	}
	e.AddTrace(events)

	src := "service:act:OK"
	dstSeen := "user:act:OK"
	dstUnseen := "user:other:OK"

	pSeen := e.GetProbability(src, dstSeen)
	pUnseen := e.GetProbability(src, dstUnseen)

	assert.Greater(t, pSeen, pUnseen)
	assert.Greater(t, pUnseen, 0.0)
}

func TestEngine_AnomalyMonotonicity(t *testing.T) {
	e := New(DefaultConfig())

	trained := []auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "gateway", "action": "b", "outcome": "OK"},
	}
	for i := 0; i < 10; i++ {
		e.AddTrace(trained)
	}

	normalScore := e.ScoreTrace(trained)

	anomalous := []auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "gateway", "action": "c", "outcome": "OK"},
	}
	anomalousScore := e.ScoreTrace(anomalous)

	assert.Less(t, normalScore, anomalousScore)
}

func TestEngine_ProbabilityAlwaysPositive(t *testing.T) {
	e := New(DefaultConfig())
	e.AddTrace([]auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "gateway", "action": "b", "outcome": "OK"},
	})

	p := e.GetProbability("anything", "else")
	assert.Greater(t, p, 0.0)
}

func TestEngine_RoundTripExtraction(t *testing.T) {
	events := []auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "user", "action": "b", "outcome": "ERROR"},
	}
	seq1 := ExtractSequence(events)
	seq2 := ExtractSequence(events)
	assert.Equal(t, seq1, seq2)
}

func TestEngine_ScoreIsFinite(t *testing.T) {
	e := New(DefaultConfig())
	e.AddTrace([]auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "gateway", "action": "b", "outcome": "OK"},
	})
	score := e.ScoreTrace([]auditevent.Event{
		{"principal": "gateway", "action": "a", "outcome": "OK"},
		{"principal": "gateway", "action": "b", "outcome": "OK"},
	})
	assert.False(t, math.IsInf(score, 0))
	assert.False(t, math.IsNaN(score))
}
