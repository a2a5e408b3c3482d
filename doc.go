// Package authsync establishes "who is the current user, in which
// organization, with which roles" on top of an external identity provider
// whose session accessor can hang and whose state is mirrored across several
// storage tiers that can disagree or go stale.
//
// Session resolution:
//   - SessionResolver walks an ordered chain of sources (event-provided
//     session, pending handoff record, persisted provider mirror, the
//     authoritative accessor raced against a timeout) and returns the first
//     valid, unexpired session. Mirror recoveries are adopted back into the
//     provider best-effort so its internal state converges.
//
// Enrichment:
//   - EnrichmentFetcher turns a bare session into a contextualized identity
//     (profile, roles, organization, department scope) with bounded parallel
//     requests. Non-load-bearing failures degrade to empty values instead of
//     failing the cycle; only the profile fetch surfaces an error.
//
// Orchestration:
//   - AuthEngine owns the single-flight guard, reacts to identity lifecycle
//     events, and publishes immutable AuthSnapshot values to subscribers. A
//     SafetyWatchdog converts "stuck loading" into a terminal timeout error,
//     and CleanupCoordinator purges every storage mirror on sign-out.
package authsync
