// Package delay provides the delayed-execution primitive behind the job
// scheduler: arm a payload now, have a handler invoked once after a delay.
// The redis implementation survives process restarts; the in-memory one is
// the fallback when redis is unreachable and the workhorse in tests.
package delay

import (
	"context"
	"time"
)

// Payload kinds dispatched to the bound handler.
const (
	KindJobFire = "job_fire" // fire a persisted cron job by id
	KindArmNext = "arm_next" // create and arm the next monthly occurrence
)

// FirePayload identifies the work item handed back to the handler when an
// armed trigger fires.
type FirePayload struct {
	Kind        string `json:"kind"`
	JobID       uint   `json:"job_id,omitempty"`
	SubjectID   uint   `json:"subject_id,omitempty"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	AfterMillis int64  `json:"after_millis,omitempty"` // where the next-occurrence search starts
}

// Handler consumes fired payloads. Implementations must tolerate duplicate
// deliveries; the store-level status claim is the exactly-once guard.
type Handler func(ctx context.Context, p FirePayload)

// Executor arms a handler invocation after a delay and returns an opaque
// trigger id. Arming is fire-and-forget: cancellation is soft, performed by
// the handler observing persisted state, never by retracting the trigger.
type Executor interface {
	ArmAfter(ctx context.Context, delay time.Duration, p FirePayload) (string, error)
}
