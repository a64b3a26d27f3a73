// Package heartbeat defines the status values long running routines send to the watchdog in main. A routine reports
// RoutineNormal while it's healthy and any other error when it has failed.
package heartbeat

import (
	"fmt"
	"time"
)

// TimeoutAfter is how long a routine may stay silent before it's considered to have failed.
const TimeoutAfter = 120 * time.Second

// RoutineNormal is sent internally to indicate normal status. It satisfies the error interface so we can send either
// a wrapped error or no-error on the same channel.
type RoutineNormal struct {
	origin    string
	Timestamp time.Time
}

// NewRoutineNormal generates a normal status stamped with the current time.
func NewRoutineNormal(origin string) RoutineNormal {
	return RoutineNormal{origin: origin, Timestamp: time.Now()}
}

func (n RoutineNormal) Error() string {
	return fmt.Sprintf("Routine Normal (%v)", n.origin)
}

// Origin returns the name of the routine that generated the status.
func (n RoutineNormal) Origin() string {
	return n.origin
}

// Timeout is generated by the watchdog when a routine hasn't reported for longer than TimeoutAfter.
type Timeout struct {
	LastSeen time.Time
}

// NewTimeout returns a Timeout for a routine last heard from at lastSeen.
func NewTimeout(lastSeen time.Time) Timeout {
	return Timeout{LastSeen: lastSeen}
}

func (t Timeout) Error() string {
	return fmt.Sprintf("routine timed out, last seen %v ago", time.Since(t.LastSeen).Round(time.Second))
}

// Report sends a status to the watchdog. A RoutineNormal is dropped if the channel is full, as the watchdog is
// already behind and one more normal status won't change its verdict. Anything else blocks until delivered.
func Report(status chan<- error, s error) {
	if !IsNormal(s) {
		status <- s
		return
	}
	select {
	case status <- s:
	default:
	}
}

// IsNormal reports whether err is a RoutineNormal status.
func IsNormal(err error) bool {
	_, ok := err.(RoutineNormal)
	return ok
}
