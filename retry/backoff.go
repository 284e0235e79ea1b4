package retry

import (
	"math/rand"
	"time"
)

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next < 0 {
		next = 0
	}
	if max > 0 && next > max {
		return max
	}
	return next
}

func applyJitter(backoff time.Duration, kind JitterKind) time.Duration {
	switch kind {
	case JitterNone, "":
		return backoff
	case JitterFull:
		return time.Duration(rand.Float64() * float64(backoff))
	case JitterEqual:
		half := float64(backoff) / 2
		return time.Duration(half + rand.Float64()*half)
	default:
		return backoff
	}
}

func capBackoff(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
