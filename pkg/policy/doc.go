// Package policy evaluates topic-scope decisions for chat messages using an
// embedded OPA engine. The Rego module and its data document (allowed topics,
// off-topic markers) are compiled into a prepared query at construction; a
// configuration reload builds a fresh engine rather than mutating a live one.
package policy
