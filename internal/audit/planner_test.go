package audit

import (
	"errors"
	"testing"
)

func TestComputeLimitFixedMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		cfg   TickConfig
		depth int
		want  int
	}{
		{name: "tops up to target", cfg: TickConfig{FixedLimit: 50}, depth: 10, want: 40},
		{name: "queue already full", cfg: TickConfig{FixedLimit: 50}, depth: 50, want: 0},
		{name: "queue over target", cfg: TickConfig{FixedLimit: 50}, depth: 80, want: 0},
		{name: "empty queue", cfg: TickConfig{FixedLimit: 25}, depth: 0, want: 25},
		{name: "negative depth clamps", cfg: TickConfig{FixedLimit: 10}, depth: -5, want: 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeLimit(tt.cfg, 1000, tt.depth)
			if err != nil {
				t.Fatalf("ComputeLimit error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ComputeLimit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeLimitPacedMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		cfg   TickConfig
		total int
		want  int
	}{
		{name: "exact division", cfg: TickConfig{HorizonDays: 100, TickHours: 12}, total: 1000, want: 5},
		{name: "rounds up", cfg: TickConfig{HorizonDays: 7, TickHours: 1}, total: 1000, want: 6},
		{name: "daily sweep", cfg: TickConfig{HorizonDays: 30, TickHours: 24}, total: 900, want: 30},
		{name: "empty corpus", cfg: TickConfig{HorizonDays: 30, TickHours: 24}, total: 0, want: 0},
		{name: "tiny corpus still progresses", cfg: TickConfig{HorizonDays: 365, TickHours: 1}, total: 1, want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeLimit(tt.cfg, tt.total, 999)
			if err != nil {
				t.Fatalf("ComputeLimit error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ComputeLimit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeLimitPacedIgnoresDepth(t *testing.T) {
	t.Parallel()
	cfg := TickConfig{HorizonDays: 100, TickHours: 12}
	a, err := ComputeLimit(cfg, 1000, 0)
	if err != nil {
		t.Fatalf("ComputeLimit error: %v", err)
	}
	b, err := ComputeLimit(cfg, 1000, 10000)
	if err != nil {
		t.Fatalf("ComputeLimit error: %v", err)
	}
	if a != b {
		t.Fatalf("paced limit varies with depth: %d vs %d", a, b)
	}
}

func TestTickConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     TickConfig
		wantErr bool
	}{
		{name: "fixed ok", cfg: TickConfig{FixedLimit: 50}},
		{name: "paced ok", cfg: TickConfig{HorizonDays: 30, TickHours: 6}},
		{name: "nothing configured", cfg: TickConfig{}, wantErr: true},
		{name: "only horizon_days", cfg: TickConfig{HorizonDays: 30}, wantErr: true},
		{name: "only tick_hours", cfg: TickConfig{TickHours: 6}, wantErr: true},
		{name: "negative fixed_limit", cfg: TickConfig{FixedLimit: -1}, wantErr: true},
		{name: "negative horizon_days", cfg: TickConfig{HorizonDays: -2, TickHours: 6}, wantErr: true},
		{name: "negative tick_hours", cfg: TickConfig{HorizonDays: 30, TickHours: -6}, wantErr: true},
		{name: "both modes", cfg: TickConfig{FixedLimit: 50, HorizonDays: 30, TickHours: 6}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("error does not wrap ErrConfig: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate error: %v", err)
			}
		})
	}
}

func TestComputeLimitRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := ComputeLimit(TickConfig{HorizonDays: 30}, 100, 0)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
