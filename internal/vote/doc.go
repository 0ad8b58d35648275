// Package vote implements candidate screening and first-to-ahead-by-k
// margin voting over attempts for a single step.
//
// An Attempt is one candidate outcome produced by an external generator
// for one step. Candidates pass through the Filter before they may count
// as votes: oversized, malformed, error-bearing, or under-specified
// payloads are rejected as red flags and never enter a ledger.
//
// Accepted attempts are compared by canonical signature: the RFC 8785
// canonical JSON of their {action, result} pair. Two attempts with the
// same signature are the same vote regardless of key order, whitespace,
// or Unicode normalization differences in the raw payloads.
//
// Decide scans a step's ledger in order and declares a winner once the
// leading signature is ahead of the runner-up by at least k votes with
// no tie at the top. A pending result reports the current vote and
// candidate counts so the caller can decide whether to request more
// attempts; the retry policy lives entirely outside this package.
package vote
