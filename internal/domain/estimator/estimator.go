// Package estimator defines the contract of the pre-trained regression model
// that maps a model input row to a predicted half-marathon time.
package estimator

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/halfpace/internal/domain/record"
)

// Sentinel error kinds for this package.
var (
	ErrEstimation     = errors.New("estimation failed")
	ErrSchemaMismatch = errors.New("input does not match the trained schema")
	ErrNotLoaded      = errors.New("estimator not loaded")
)

// Estimator predicts a duration in seconds for one input row. The value is
// returned as-is: it may be fractional, and nothing here clamps it.
type Estimator interface {
	Predict(ctx context.Context, in record.Input) (float64, error)
}

// Func adapts a plain function to Estimator.
type Func func(ctx context.Context, in record.Input) (float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, in record.Input) (float64, error) {
	return f(ctx, in)
}

// LazyEstimator defers an expensive load to the first prediction and runs it
// at most once, even under concurrent callers. A failed load is remembered
// and returned by every later call.
type LazyEstimator struct {
	load func() (Estimator, error)
}

// Lazy wraps load into a LazyEstimator.
func Lazy(load func() (Estimator, error)) *LazyEstimator {
	return &LazyEstimator{load: sync.OnceValues(load)}
}

// Predict loads the underlying estimator if needed and delegates to it.
func (l *LazyEstimator) Predict(ctx context.Context, in record.Input) (float64, error) {
	est, err := l.Get()
	if err != nil {
		return 0, err
	}
	return est.Predict(ctx, in)
}

// Get returns the loaded estimator, loading it on first use.
func (l *LazyEstimator) Get() (Estimator, error) {
	est, err := l.load()
	if err != nil {
		return nil, errors.Join(ErrNotLoaded, err)
	}
	if est == nil {
		return nil, ErrNotLoaded
	}
	return est, nil
}

// Ready reports whether est can serve predictions, loading it if it is lazy.
func Ready(est Estimator) error {
	if est == nil {
		return ErrNotLoaded
	}
	if l, ok := est.(*LazyEstimator); ok {
		_, err := l.Get()
		return err
	}
	return nil
}
