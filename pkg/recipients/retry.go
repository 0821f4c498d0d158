package recipients

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds the directory retry loop: attempts are capped and the
// backoff doubles from Initial up to Max, with jitter.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.Initial << uint(attempt-1)
	if d > p.Max || d <= 0 {
		d = p.Max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
