// Package health runs the readiness probes behind /health/ready.
package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Probe checks one dependency. An error means not ready.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result is the outcome of one probe run.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner evaluates a fixed probe set with a per-probe timeout.
type ProbeRunner struct {
	probes  []Probe
	timeout time.Duration
}

func NewProbeRunner(timeout time.Duration, probes ...Probe) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{probes: probes, timeout: timeout}
}

// Ready runs every probe and reports overall readiness plus per-probe
// detail.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	results := make([]Result, 0, len(p.probes))
	ready := true
	for _, probe := range p.probes {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := probe.Check(probeCtx)
		cancel()
		res := Result{Name: probe.Name, Healthy: err == nil}
		if err != nil {
			res.Error = err.Error()
			ready = false
		}
		results = append(results, res)
	}
	return ready, results
}

// DatabaseProbe pings the underlying sql connection.
func DatabaseProbe(db *gorm.DB) Probe {
	return Probe{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// RedisProbe pings the rate-limit backend.
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}
