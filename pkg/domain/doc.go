// Package domain defines the core types shared by the guardrail pipeline.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no HTTP, storage, or telemetry coupling)
// - Technology-agnostic (no framework types in signatures)
// - Testable in isolation without mocks
//
// The guard packages, the governance layer, and the pipeline facade all
// implement interfaces declared here and depend on these types. The
// dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
