// Package generation is the text generation client used by synthesis and
// validation. It wraps a langchaingo model with a rate limiter, a circuit
// breaker and a per-call timeout. It never retries.
package generation
