// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errkinds holds the closed set of error kinds spec.md §7 routes
// dispatcher and component failures through, grounded on the teacher's
// core.Err* sentinel-set shape (core/errors.go) but built on
// github.com/cockroachdb/errors so call sites can wrap with context and
// still classify with errors.Is.
package errkinds

import "github.com/cockroachdb/errors"

var (
	// Malformed: a frame or message failed to decode or validate.
	// Dropped, logged rate-limited (spec §7).
	Malformed = errors.New("errkinds: malformed")

	// Unauthorised: a non-member sender addressed a member-only channel.
	// Dropped, logged at debug.
	Unauthorised = errors.New("errkinds: unauthorised")

	// RateLimited: a caller exceeded a rate bound. Dropped, logged warn.
	RateLimited = errors.New("errkinds: rate limited")

	// Stale: an older version/ticket/challenge than already on file.
	// Dropped silently.
	Stale = errors.New("errkinds: stale")

	// Conflict: an Intent lost its tie-break. The caller broadcasts an
	// abort and returns cleanly; this is not a failure.
	Conflict = errors.New("errkinds: conflict")

	// Unavailable: the Bridge is open, or a peer is offline. Fails only
	// the current action, never the process.
	Unavailable = errors.New("errkinds: unavailable")

	// Timeout: a bounded timeout expired. Treated as Unavailable for
	// Bridge calls, as Stale for everything else (spec §7).
	Timeout = errors.New("errkinds: timeout")

	// Invariant: an internal inconsistency. Logged at error; the caller
	// must not execute any side effect alongside this classification.
	Invariant = errors.New("errkinds: invariant")
)
