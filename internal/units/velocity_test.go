package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	for _, u := range []string{"", "knots", "MPH", "m/s"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true, want false", u)
		}
	}
}

func TestConvertVelocity(t *testing.T) {
	tests := []struct {
		mps   float64
		units string
		want  float64
	}{
		{10, MPS, 10},
		{10, MPH, 22.369362920544},
		{10, KPH, 36},
		{10, KMPH, 36},
		{-2.25, MPH, -5.0331066571224},
		{0, MPH, 0},
		{10, "unknown", 10},
	}
	for _, tt := range tests {
		got := ConvertVelocity(tt.mps, tt.units)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ConvertVelocity(%v, %q) = %v, want %v", tt.mps, tt.units, got, tt.want)
		}
	}
}
