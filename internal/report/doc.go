// Package report turns a finalized session record into human-readable
// coaching feedback.
//
// Build is a pure function over the record snapshot: a summary line, one
// insight per tracked signal, and an ordered list of recommendations.
// Missing fields fall back to neutral defaults, so a report can always be
// produced for any stored session.
package report
