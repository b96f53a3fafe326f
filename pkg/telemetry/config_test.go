package telemetry

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := ProductionConfig().Validate(); err != nil {
		t.Errorf("production config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"empty version", func(c *Config) { c.ServiceVersion = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger2"
		}},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these may panic on a disabled collector.
	m.RecordRunStarted("apply")
	m.RecordRunCompleted("apply", "completed", time.Second)
	m.RecordAllocation("vmid")
	m.RecordAllocationFailure("ip", "NO_CAPACITY")
	m.RecordRelease("ip")
	m.RecordPass("allocation", time.Millisecond, 3)
	m.RecordToolRun("terraform", "apply", time.Second, nil)
	m.RecordPolicyViolation("unresolved-tokens", "error")
}

func TestMetricsEnabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "proxforge",
	})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordRunStarted("apply")
	m.RecordAllocation("vmid")
	m.RecordRunCompleted("apply", "completed", time.Second)

	if m.Handler() == nil {
		t.Error("Handler returned nil for enabled metrics")
	}
}
