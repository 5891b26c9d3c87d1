package handlers

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/pkg/errors"
)

const (
	maxGoroutines = 10000
	pingTimeout   = 2 * time.Second
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewProbes builds liveness and readiness checks. The service is ready once the
// model is loaded and the history store answers.
func NewProbes(engine Predictor, history Pinger) healthcheck.Handler {
	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	probes.AddReadinessCheck("model", ModelCheck(engine))
	if history != nil {
		probes.AddReadinessCheck("history-store", healthcheck.Timeout(PingCheck(history), pingTimeout))
	}
	return probes
}

func ModelCheck(engine Predictor) healthcheck.Check {
	return func() error {
		if !engine.ModelLoaded() {
			return errors.New("model not loaded")
		}
		return nil
	}
}

func PingCheck(p Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return p.Ping(ctx)
	}
}
