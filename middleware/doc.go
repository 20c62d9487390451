// Package middleware wraps individual executor attempts.
//
// A queue runs every attempt through a [Chain]. The queue itself puts
// [Recover] outermost and [Timeout] innermost; the engine slots [Tracing],
// [Metrics] and [Logging] in between, followed by any user middleware.
//
// Tracing and Metrics classify each attempt as success, failure or timeout.
package middleware
