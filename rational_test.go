package avtk

import (
	"math"
	"testing"
)

func TestRescaleRnd(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int64
		rnd     Rounding
		want    int64
	}{
		{"exact", 100, 3, 4, RoundNearInf, 75},
		{"near_up", 5, 3, 2, RoundNearInf, 8},
		{"near_down", 5, 3, 4, RoundNearInf, 4},
		{"zero", 5, 3, 2, RoundZero, 7},
		{"inf", 5, 3, 2, RoundInf, 8},
		{"down", 5, 3, 2, RoundDown, 7},
		{"up", 5, 3, 4, RoundUp, 4},
		{"up_partial", 1024, 44100, 48000, RoundUp, 941},
		{"negative_near", -5, 3, 2, RoundNearInf, -8},
		{"negative_down", -5, 3, 2, RoundDown, -8},
		{"negative_up", -5, 3, 2, RoundUp, -7},
		{"negative_zero", -5, 3, 2, RoundZero, -7},
		{"large_a", int64(1) << 40, 1000, 3, RoundDown, (int64(1) << 40) * 1000 / 3},
		{"large_bc", 90000, int64(1) << 33, int64(1) << 32, RoundNearInf, 180000},
		{"invalid_c", 1, 1, 0, RoundNearInf, NoPTS},
		{"invalid_b", 1, -1, 1, RoundNearInf, NoPTS},
		{"nopts_passthrough", NoPTS, 1, 1, RoundNearInf, NoPTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RescaleRnd(tt.a, tt.b, tt.c, tt.rnd); got != tt.want {
				t.Errorf("RescaleRnd(%d, %d, %d, %d) = %d, want %d", tt.a, tt.b, tt.c, tt.rnd, got, tt.want)
			}
		})
	}
}

func TestRescaleRnd128Bit(t *testing.T) {
	// Forces the 128-bit path: a*b does not fit in an int64.
	a := int64(1) << 40
	b := int64(1) << 33
	c := int64(1) << 34
	if got := RescaleRnd(a, b, c, RoundNearInf); got != a/2 {
		t.Errorf("RescaleRnd(2^40, 2^33, 2^34) = %d, want %d", got, a/2)
	}
	// Overflowing result is reported as NoPTS.
	if got := RescaleRnd(math.MaxInt64, math.MaxInt64, 1, RoundZero); got != NoPTS {
		t.Errorf("overflow = %d, want NoPTS", got)
	}
}

func TestRescaleQ(t *testing.T) {
	tests := []struct {
		name     string
		ts       int64
		from, to Rational
		want     int64
	}{
		{"codec_to_ms", 25, R(1, 25), R(1, 1000), 1000},
		{"audio_to_ms", 48000, R(1, 48000), R(1, 1000), 1000},
		{"ms_to_90k", 40, R(1, 1000), R(1, 90000), 3600},
		{"identity", 1234, R(1, 90000), R(1, 90000), 1234},
		{"rounding", 1, R(1, 3), R(1, 1), 0},
		{"nopts", NoPTS, R(1, 25), R(1, 1000), NoPTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RescaleQ(tt.ts, tt.from, tt.to); got != tt.want {
				t.Errorf("RescaleQ(%d, %v, %v) = %d, want %d", tt.ts, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCompareTS(t *testing.T) {
	tests := []struct {
		name   string
		aTS    int64
		aTB    Rational
		bTS    int64
		bTB    Rational
		want   int
	}{
		// One video frame at 25 fps lasts exactly 1920 samples at 48 kHz.
		{"frame_equals_samples", 1, R(1, 25), 1920, R(1, 48000), 0},
		{"video_ahead", 2, R(1, 25), 1920, R(1, 48000), 1},
		{"audio_ahead", 1, R(1, 25), 1921, R(1, 48000), -1},
		{"ten_seconds_at_25fps", 250, R(1, 25), 10, R(1, 1), 0},
		{"just_under_budget", 249, R(1, 25), 10, R(1, 1), -1},
		{"zero_zero", 0, R(1, 25), 0, R(1, 48000), 0},
		{"negative", -1, R(1, 25), 0, R(1, 48000), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareTS(tt.aTS, tt.aTB, tt.bTS, tt.bTB); got != tt.want {
				t.Errorf("CompareTS(%d, %v, %d, %v) = %d, want %d",
					tt.aTS, tt.aTB, tt.bTS, tt.bTB, got, tt.want)
			}
		})
	}
}

func TestCompareTSLargeValues(t *testing.T) {
	// Values past the 32-bit fast path must still compare exactly.
	a := int64(1) << 61
	if got := CompareTS(a, R(1, 3), a+1, R(1, 3)); got != -1 {
		t.Errorf("CompareTS(2^61, 1/3, 2^61+1, 1/3) = %d, want -1", got)
	}
	if got := CompareTS(a+1, R(1, 3), a, R(1, 3)); got != 1 {
		t.Errorf("CompareTS(2^61+1, 1/3, 2^61, 1/3) = %d, want 1", got)
	}
	if got := CompareTS(a, R(1, 3), a, R(1, 3)); got != 0 {
		t.Errorf("CompareTS(2^61, 1/3, 2^61, 1/3) = %d, want 0", got)
	}
}

func TestRationalHelpers(t *testing.T) {
	if got := R(1, 25).Float(); got != 0.04 {
		t.Errorf("Float() = %v, want 0.04", got)
	}
	if got := R(0, 0).Float(); got != 0 {
		t.Errorf("Float() on zero = %v, want 0", got)
	}
	if got := R(1, 25).Invert(); got != R(25, 1) {
		t.Errorf("Invert() = %v, want 25/1", got)
	}
	if !R(1, 90000).IsValid() {
		t.Error("1/90000 should be valid")
	}
	if R(0, 1).IsValid() || R(1, 0).IsValid() || R(-1, 25).IsValid() {
		t.Error("degenerate rationals should not be valid")
	}
	if got := R(1, 25).String(); got != "1/25" {
		t.Errorf("String() = %q, want 1/25", got)
	}
}
