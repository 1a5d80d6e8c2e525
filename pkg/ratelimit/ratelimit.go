// edgewall/pkg/ratelimit/ratelimit.go

package ratelimit

import "time"

type Decision int

const (
	Ok Decision = iota
	Exceeded
)

func (d Decision) String() string {
	if d == Exceeded {
		return "exceeded"
	}
	return "ok"
}

// Limiter is the counter store consulted by rateLimit nodes. The
// check-and-increment is a single logical operation: two concurrent
// requests can never both pass the threshold unobserved.
type Limiter interface {
	Check(counterName, key string, window time.Duration, maxRequests uint32, blockTTL time.Duration) (Decision, error)
}
