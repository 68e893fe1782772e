package obs

import (
	"expvar"
	"time"
)

var (
	started = time.Now()

	// Operations counts catalog operations by name, published under
	// /debug/vars as "catalog_operations".
	Operations = expvar.NewMap("catalog_operations")
	// Failures counts failed catalog operations by name.
	Failures = expvar.NewMap("catalog_failures")
	// TokensIssued counts access tokens handed out by the token endpoint.
	TokensIssued = new(expvar.Int)
)

func init() {
	expvar.Publish("tokens_issued", TokensIssued)
}

// Observe records one run of op and whether it failed.
func Observe(op string, err error) {
	Operations.Add(op, 1)
	if err != nil {
		Failures.Add(op, 1)
	}
}

// Uptime reports how long the process has been running.
func Uptime() time.Duration {
	return time.Since(started)
}

// Snapshot returns the counters as plain values for the metrics endpoint.
func Snapshot() map[string]any {
	ops := map[string]int64{}
	Operations.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			ops[kv.Key] = v.Value()
		}
	})
	fails := map[string]int64{}
	Failures.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			fails[kv.Key] = v.Value()
		}
	})
	return map[string]any{
		"operations":    ops,
		"failures":      fails,
		"tokens_issued": TokensIssued.Value(),
		"uptime_sec":    Uptime().Seconds(),
	}
}
