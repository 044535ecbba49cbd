package domain

// VectorRecord is a transient embedding payload submitted for integrity
// validation. The pipeline validates and discards it; records are never
// persisted by this subsystem.
type VectorRecord struct {
	// ModelID is the declared embedding model identifier.
	ModelID string
	// Values holds the raw vector components.
	Values []float64
	// Checksum is filled in by the integrity checker on success.
	Checksum string
}

// VectorStats summarises a vector for anomaly comparison.
type VectorStats struct {
	Mean         float64
	StdDev       float64
	UniqueRatio  float64
	ExtremeRatio float64
}
