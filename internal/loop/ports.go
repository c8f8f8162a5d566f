package loop

import (
	"context"

	"github.com/mrcode/loop-engine/internal/models"
)

// Decision is an admission verdict
type Decision struct {
	Accepted bool
	Reasons  []string // Why the input was rejected
}

// Accept is the decision that lets an invocation proceed
func Accept() Decision {
	return Decision{Accepted: true}
}

// Reject is a decision that stops an invocation
func Reject(reasons ...string) Decision {
	return Decision{Reasons: reasons}
}

// Validator decides whether a request's settings and readings may be used
// for a recommendation
type Validator interface {
	Validate(ctx context.Context, req *models.Request) Decision
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, req *models.Request) Decision

// Validate implements Validator
func (f ValidatorFunc) Validate(ctx context.Context, req *models.Request) Decision {
	return f(ctx, req)
}

// EffectCache stores effect series between invocations under a caller key
type EffectCache interface {
	// Get returns the effects stored under key. found is false on a miss.
	Get(ctx context.Context, key string) (effects *models.Effects, found bool, err error)
	Set(ctx context.Context, key string, effects *models.Effects) error
}
