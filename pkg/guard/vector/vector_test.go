package vector

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/logging"
	"github.com/aegisai/aegis-oss/pkg/rules"
)

const miniLM = "sentence-transformers/all-MiniLM-L6-v2"

func newTestChecker(sink domain.EventSink) *Checker {
	logger := logging.NewLogger(logging.Config{Level: "error"})
	return New(rules.DefaultWhitelist(), sink, logger, DefaultConfig())
}

// wellFormed produces a deterministic vector that passes every check for a
// model with the default baseline.
func wellFormed(dims int) []float64 {
	values := make([]float64, dims)
	for i := range values {
		values[i] = 0.5 * math.Sin(float64(i)+0.1)
	}
	return values
}

func kindOf(t *testing.T, err error) domain.ErrorKind {
	t.Helper()
	kind, ok := domain.KindOf(err)
	require.True(t, ok, "expected a pipeline rejection, got %v", err)
	return kind
}

func TestValidateAcceptsWellFormedVector(t *testing.T) {
	c := newTestChecker(nil)

	checksum, err := c.Validate(context.Background(), wellFormed(384), miniLM)
	require.NoError(t, err)
	assert.Len(t, checksum, 16)
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	c := newTestChecker(nil)

	_, err := c.Validate(context.Background(), wellFormed(384), "mystery-model")
	assert.Equal(t, domain.KindModelNotWhitelisted, kindOf(t, err))
}

func TestValidateRejectsWrongDimension(t *testing.T) {
	c := newTestChecker(nil)

	_, err := c.Validate(context.Background(), wellFormed(50), miniLM)
	assert.Equal(t, domain.KindVectorDimensionInvalid, kindOf(t, err))
}

func TestValidateRejectsOutOfRangeComponent(t *testing.T) {
	c := newTestChecker(nil)

	values := wellFormed(384)
	values[100] = 1.5
	_, err := c.Validate(context.Background(), values, miniLM)
	assert.Equal(t, domain.KindVectorRangeInvalid, kindOf(t, err))

	values[100] = math.NaN()
	_, err = c.Validate(context.Background(), values, miniLM)
	assert.Equal(t, domain.KindVectorRangeInvalid, kindOf(t, err))
}

func TestValidateRejectsAnomalies(t *testing.T) {
	c := newTestChecker(nil)

	// Constant vector: stddev below the baseline floor.
	flat := make([]float64, 384)
	for i := range flat {
		flat[i] = 0.25
	}
	_, err := c.Validate(context.Background(), flat, miniLM)
	assert.Equal(t, domain.KindVectorAnomalyDetected, kindOf(t, err))

	// Shifted vector: mean far from the baseline.
	shifted := wellFormed(384)
	for i := range shifted {
		shifted[i] = 0.15*shifted[i] + 0.9
	}
	_, err = c.Validate(context.Background(), shifted, miniLM)
	assert.Equal(t, domain.KindVectorAnomalyDetected, kindOf(t, err))
}

func TestValidateEmitsEvents(t *testing.T) {
	var events []domain.SecurityEvent
	sink := domain.EventSinkFunc(func(_ context.Context, e domain.SecurityEvent) {
		events = append(events, e)
	})
	c := newTestChecker(sink)

	_, err := c.Validate(context.Background(), wellFormed(384), miniLM)
	require.NoError(t, err)
	_, err = c.Validate(context.Background(), wellFormed(10), miniLM)
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, domain.EventVectorValidated, events[0].Type)
	assert.Equal(t, domain.EventVectorRejected, events[1].Type)
	assert.Equal(t, domain.KindVectorDimensionInvalid, events[1].Kind)
}

func TestChecksumIsStable(t *testing.T) {
	values := wellFormed(384)
	first := Checksum(values)
	second := Checksum(values)
	assert.Equal(t, first, second)
	assert.Len(t, first, 16)

	values[0] += 1e-9
	assert.NotEqual(t, first, Checksum(values))
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]float64{0.5, -0.5, 0.5, -0.5})
	assert.InDelta(t, 0.0, stats.Mean, 1e-9)
	assert.InDelta(t, 0.5, stats.StdDev, 1e-9)
	assert.InDelta(t, 0.5, stats.UniqueRatio, 1e-9)
	assert.InDelta(t, 0.0, stats.ExtremeRatio, 1e-9)

	assert.Equal(t, domain.VectorStats{}, Summarize(nil))
}
