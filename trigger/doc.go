// Package trigger runs remote automation jobs against Home Assistant.
//
// [HomeAssistant] is a small REST client for the automation.trigger
// service. [Executor] adapts any [Triggerer] to job.Executor so the
// trigger queue can run it.
package trigger
