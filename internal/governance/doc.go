// Package governance coordinates the runtime consumption controls of the
// guardrail pipeline: per-session sliding-window rate limiting, the daily
// token ledger, and per-provider circuit breaking.
//
// Session state is held in a sharded store with per-session locking so that
// unrelated sessions never contend on a shared lock, while admission checks
// for one session remain atomic even when the same session id has several
// in-flight requests. Circuit breakers are small per-provider state machines
// with atomic transitions; callers observe only the three-state enum.
package governance
