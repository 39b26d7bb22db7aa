package logging

import "testing"

func TestProgressSampler(t *testing.T) {
	s := NewProgressSampler(25)

	steps := []struct {
		percent float64
		stage   string
		want    bool
	}{
		{0, "batch", true},
		{10, "batch", false},
		{26, "batch", true},
		{30, "batch", false},
		{30, "summary", true},
		{100, "summary", true},
		{100, "summary", false},
	}

	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Errorf("step %d: ShouldLog(%v, %q) = %v, want %v", i, step.percent, step.stage, got, step.want)
		}
	}

	s.Reset()
	if !s.ShouldLog(0, "batch") {
		t.Error("ShouldLog after Reset should emit")
	}
}

func TestProgressSampler_Nil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "x") {
		t.Error("nil sampler should always log")
	}
}
