// Package lock provides mutexes with opt-in deadlock detection.
// Detection is off by default as it adds overhead to every lock
// acquisition; it is enabled in tests.
package lock

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

func init() {
	deadlock.Opts.Disable = true
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}

// RWMutex is a drop-in replacement for sync.RWMutex backed by go-deadlock.
type RWMutex = deadlock.RWMutex

// Mutex is a drop-in replacement for sync.Mutex backed by go-deadlock.
type Mutex = deadlock.Mutex

// EnableDeadlockDetection turns on detection for the whole process.
func EnableDeadlockDetection() {
	deadlock.Opts.Disable = false
}
