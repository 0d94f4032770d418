package domain

import (
	"sync/atomic"
	"time"
)

var lastTaskID atomic.Int64

// NewTaskID returns a millisecond timestamp that is strictly greater than any
// id previously returned by this process, so rapid creates never collide.
func NewTaskID() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastTaskID.Load()
		if now <= last {
			now = last + 1
		}
		if lastTaskID.CompareAndSwap(last, now) {
			return now
		}
	}
}
