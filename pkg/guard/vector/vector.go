// Package vector implements the embedding integrity checker: model
// whitelist, dimensionality, component range and statistical anomaly checks,
// plus the audit checksum computed for accepted vectors.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/rules"
)

// Config holds the anomaly thresholds shared across models. Per-model mean
// and stddev baselines live on the whitelist profile.
type Config struct {
	// MinUniqueRatio rejects vectors whose distinct-value ratio falls
	// below it (repeated values suggest synthetic payloads).
	MinUniqueRatio float64
	// MaxExtremeRatio rejects vectors with too many components beyond
	// ExtremeValue in magnitude.
	MaxExtremeRatio float64
	// ExtremeValue is the magnitude beyond which a component counts as
	// extreme.
	ExtremeValue float64
}

// DefaultConfig returns the default anomaly thresholds.
func DefaultConfig() Config {
	return Config{MinUniqueRatio: 0.8, MaxExtremeRatio: 0.1, ExtremeValue: 0.8}
}

// Checker validates embedding payloads against the model whitelist.
// Immutable after construction, safe for concurrent use.
type Checker struct {
	whitelist *rules.Whitelist
	sink      domain.EventSink
	logger    *slog.Logger
	config    Config
}

// New constructs a checker over the given whitelist.
func New(whitelist *rules.Whitelist, sink domain.EventSink, logger *slog.Logger, cfg Config) *Checker {
	def := DefaultConfig()
	if cfg.MinUniqueRatio <= 0 {
		cfg.MinUniqueRatio = def.MinUniqueRatio
	}
	if cfg.MaxExtremeRatio <= 0 {
		cfg.MaxExtremeRatio = def.MaxExtremeRatio
	}
	if cfg.ExtremeValue <= 0 {
		cfg.ExtremeValue = def.ExtremeValue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{whitelist: whitelist, sink: sink, logger: logger, config: cfg}
}

// Validate runs the whitelist, dimension, range and anomaly checks in order
// and returns the integrity checksum on success. The checksum covers the
// exact component values, so any later mutation is detectable downstream.
func (c *Checker) Validate(ctx context.Context, values []float64, modelID string) (string, error) {
	profile, ok := c.whitelist.Lookup(modelID)
	if !ok {
		return "", c.reject(ctx, modelID, domain.NewValidationError(domain.KindModelNotWhitelisted, fmt.Sprintf("model %q is not approved", modelID)))
	}

	if len(values) != profile.Dimensions {
		return "", c.reject(ctx, modelID, domain.NewValidationError(domain.KindVectorDimensionInvalid,
			fmt.Sprintf("got %d dimensions, model expects %d", len(values), profile.Dimensions)))
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < profile.MinValue || v > profile.MaxValue {
			return "", c.reject(ctx, modelID, domain.NewValidationError(domain.KindVectorRangeInvalid,
				fmt.Sprintf("component %d = %g outside [%g, %g]", i, v, profile.MinValue, profile.MaxValue)))
		}
	}

	stats := summarize(values, c.config.ExtremeValue)
	if detail, anomalous := c.checkAnomalies(stats, profile.Baseline); anomalous {
		return "", c.reject(ctx, modelID, domain.NewValidationError(domain.KindVectorAnomalyDetected, detail))
	}

	checksum := Checksum(values)
	if c.sink != nil {
		c.sink.RecordEvent(ctx, domain.SecurityEvent{
			Type:     domain.EventVectorValidated,
			Severity: domain.SeverityLow,
			Detail:   fmt.Sprintf("model %s, checksum %s", modelID, checksum),
		})
	}
	return checksum, nil
}

func (c *Checker) checkAnomalies(stats domain.VectorStats, baseline rules.Baseline) (string, bool) {
	if dev := math.Abs(stats.Mean - baseline.Mean); dev > baseline.MaxMeanDeviation {
		return fmt.Sprintf("mean deviation %.4f exceeds %.4f", dev, baseline.MaxMeanDeviation), true
	}
	if stats.StdDev < baseline.MinStdDev || stats.StdDev > baseline.MaxStdDev {
		return fmt.Sprintf("stddev %.4f outside [%.4f, %.4f]", stats.StdDev, baseline.MinStdDev, baseline.MaxStdDev), true
	}
	if stats.UniqueRatio < c.config.MinUniqueRatio {
		return fmt.Sprintf("unique-value ratio %.4f below %.4f", stats.UniqueRatio, c.config.MinUniqueRatio), true
	}
	if stats.ExtremeRatio > c.config.MaxExtremeRatio {
		return fmt.Sprintf("extreme-value ratio %.4f exceeds %.4f", stats.ExtremeRatio, c.config.MaxExtremeRatio), true
	}
	return "", false
}

func (c *Checker) reject(ctx context.Context, modelID string, verr *domain.ValidationError) error {
	if c.sink != nil {
		c.sink.RecordEvent(ctx, domain.SecurityEvent{
			Type:     domain.EventVectorRejected,
			Severity: domain.SeverityMedium,
			Kind:     verr.Kind,
			Detail:   verr.Detail,
		})
	}
	c.logger.WarnContext(ctx, "vector rejected", "model_id", modelID, "kind", string(verr.Kind))
	return verr
}

// Summarize computes the statistics the anomaly checks run on, using the
// default extreme-value cutoff.
func Summarize(values []float64) domain.VectorStats {
	return summarize(values, 0.8)
}

func summarize(values []float64, extremeCutoff float64) domain.VectorStats {
	if len(values) == 0 {
		return domain.VectorStats{}
	}

	var sum float64
	unique := make(map[float64]struct{}, len(values))
	extreme := 0
	for _, v := range values {
		sum += v
		unique[v] = struct{}{}
		if math.Abs(v) > extremeCutoff {
			extreme++
		}
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return domain.VectorStats{
		Mean:         mean,
		StdDev:       math.Sqrt(variance),
		UniqueRatio:  float64(len(unique)) / float64(len(values)),
		ExtremeRatio: float64(extreme) / float64(len(values)),
	}
}

// Checksum returns the audit checksum of a vector: SHA-256 over the
// little-endian float64 encoding, first 16 hex characters.
func Checksum(values []float64) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
