package services

import (
	"testing"
	"time"
)

type stubSync struct {
	last     time.Time
	interval time.Duration
}

func (s stubSync) LastRun() time.Time {
	return s.last
}

func (s stubSync) Interval() time.Duration {
	return s.interval
}

func TestCheckMetricsSync(t *testing.T) {
	tests := []struct {
		name string
		sync stubSync
		want HealthStatus
	}{
		{"never ran", stubSync{interval: time.Second}, HealthStatusHealthy},
		{"recent", stubSync{last: time.Now(), interval: time.Minute}, HealthStatusHealthy},
		{"stalled", stubSync{last: time.Now().Add(-time.Hour), interval: time.Minute}, HealthStatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthService(nil, nil, tt.sync, "")
			if got := s.checkMetricsSync().Status; got != tt.want {
				t.Errorf("checkMetricsSync() = %s, want %s", got, tt.want)
			}
			if s.version != "0.0.1" {
				t.Errorf("version = %q, want default", s.version)
			}
		})
	}
}
