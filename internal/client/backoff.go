// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"math"
	"math/rand"
	"time"
)

// backoffPolicy computes reconnect delays: base * factor^(retry-1), capped,
// with a symmetric jitter fraction applied last. Pre-jitter delays are
// non-decreasing in retry count, so consecutive retries never wait less
// than the cap allows.
type backoffPolicy struct {
	base   time.Duration
	factor float64
	cap    time.Duration
	jitter float64

	// rng is injectable for deterministic tests; nil uses the global source.
	rng *rand.Rand
}

func newBackoffPolicy(base time.Duration, factor float64, cap time.Duration, jitter float64) backoffPolicy {
	return backoffPolicy{base: base, factor: factor, cap: cap, jitter: jitter}
}

// delay returns the wait before reconnect attempt retry (1-based).
func (p backoffPolicy) delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}

	d := float64(p.base) * math.Pow(p.factor, float64(retry-1))
	if d > float64(p.cap) || math.IsInf(d, 1) {
		d = float64(p.cap)
	}

	if p.jitter > 0 {
		// Uniform in [1-jitter, 1+jitter].
		d *= 1 + p.jitter*(2*p.random()-1)
	}

	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// rawDelay returns the pre-jitter delay, used by tests to check monotonicity.
func (p backoffPolicy) rawDelay(retry int) time.Duration {
	p.jitter = 0
	return p.delay(retry)
}

func (p backoffPolicy) random() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64() //nolint:gosec // jitter does not need crypto randomness
}
