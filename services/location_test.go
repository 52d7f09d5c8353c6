package services

import (
	"testing"

	"dealscout/config"
)

func newTestResolver() *DistanceResolver {
	return NewDistanceResolver(config.DefaultGazetteer())
}

func TestDistanceFromHomeKnownCities(t *testing.T) {
	r := newTestResolver()
	for _, loc := range []string{"Cookeville, TN", "Nashville, TN", "Bowling Green, KY"} {
		if d := r.DistanceFromHome(loc); d == nil {
			t.Errorf("DistanceFromHome(%q) = nil; want a distance", loc)
		}
	}
}

func TestDistanceFromHomeSuffixInvariance(t *testing.T) {
	r := newTestResolver()
	want := r.DistanceFromHome("Cookeville, TN")
	if want == nil {
		t.Fatal("Cookeville, TN should resolve")
	}
	for _, loc := range []string{"Cookeville", "cookeville tn", "  COOKEVILLE ,  Tennessee"} {
		got := r.DistanceFromHome(loc)
		if got == nil || *got != *want {
			t.Errorf("DistanceFromHome(%q) = %v; want %d", loc, got, *want)
		}
	}
}

func TestDistanceFromHomeValues(t *testing.T) {
	r := newTestResolver()
	tests := []struct {
		loc  string
		want int
	}{
		{"Rickman, TN", 0},
		{"Cookeville, TN", 9},
		{"Nashville, TN", 76},
	}
	for _, tt := range tests {
		got := r.DistanceFromHome(tt.loc)
		if got == nil || *got != tt.want {
			t.Errorf("DistanceFromHome(%q) = %v; want %d", tt.loc, got, tt.want)
		}
	}
}

func TestDistanceFromHomeUnknown(t *testing.T) {
	r := newTestResolver()
	for _, loc := range []string{"Springfield, IL", "", "   "} {
		if d := r.DistanceFromHome(loc); d != nil {
			t.Errorf("DistanceFromHome(%q) = %d; want nil", loc, *d)
		}
		if r.WithinPickupRange(loc, 100) {
			t.Errorf("WithinPickupRange(%q) should be false", loc)
		}
	}
}

func TestWithinPickupRange(t *testing.T) {
	r := newTestResolver()
	if !r.WithinPickupRange("Nashville, TN", 100) {
		t.Error("Nashville should be within 100 miles")
	}
	if r.WithinPickupRange("Memphis, TN", 100) {
		t.Error("Memphis should be outside 100 miles")
	}
}

func TestMultiWordCity(t *testing.T) {
	r := newTestResolver()
	if d := r.DistanceFromHome("Johnson City TN"); d == nil {
		t.Error("Johnson City TN should resolve")
	}
}
