package geo

import (
	"errors"
	"math"
	"testing"
)

func TestDistanceMetersZeroForSamePoint(t *testing.T) {
	p := &Point{Lat: 46.2044, Lon: 6.1432}
	d, err := DistanceMeters(p, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Errorf("Expected 0, got %d", d)
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	points := []*Point{
		{Lat: 46.2044, Lon: 6.1432},
		{Lat: 46.30, Lon: 6.20},
		{Lat: 48.8566, Lon: 2.3522},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0, Lon: 179.9},
		{Lat: 0, Lon: -179.9},
	}
	for _, a := range points {
		for _, b := range points {
			ab, err := DistanceMeters(a, b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ba, err := DistanceMeters(b, a)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ab != ba {
				t.Errorf("distance(%v,%v)=%d but distance(%v,%v)=%d", *a, *b, ab, *b, *a, ba)
			}
		}
	}
}

func TestDistanceMetersKnownValues(t *testing.T) {
	geneva := &Point{Lat: 46.2044, Lon: 6.1432}

	far, err := DistanceMeters(geneva, &Point{Lat: 46.30, Lon: 6.20})
	if err != nil {
		t.Fatal(err)
	}
	if far < 11000 || far > 12500 {
		t.Errorf("Expected roughly 11.6km, got %dm", far)
	}

	// 0.00135 degrees of latitude is about 150m.
	near, err := DistanceMeters(geneva, &Point{Lat: 46.20575, Lon: 6.1432})
	if err != nil {
		t.Fatal(err)
	}
	if near < 145 || near > 155 {
		t.Errorf("Expected about 150m, got %dm", near)
	}

	// Paris to London is about 344km.
	pl, err := DistanceMeters(&Point{Lat: 48.8566, Lon: 2.3522}, &Point{Lat: 51.5074, Lon: -0.1278})
	if err != nil {
		t.Fatal(err)
	}
	if pl < 340000 || pl > 348000 {
		t.Errorf("Expected about 344km, got %dm", pl)
	}
}

func TestDistanceMetersAntipodal(t *testing.T) {
	half := int(math.Round(math.Pi * EarthRadiusMeters))
	pairs := [][2]*Point{
		{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 180}},
		{{Lat: 90, Lon: 0}, {Lat: -90, Lon: 0}},
		{{Lat: 46.2044, Lon: 6.1432}, {Lat: -46.2044, Lon: -173.8568}},
		{{Lat: 1e-9, Lon: 0}, {Lat: -1e-9, Lon: 180}},
	}
	for _, p := range pairs {
		d, err := DistanceMeters(p[0], p[1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(float64(d-half)) > 1 {
			t.Errorf("distance(%v,%v)=%d, want about %d", *p[0], *p[1], d, half)
		}
	}
}

func TestDistanceMetersMissingCoordinates(t *testing.T) {
	p := &Point{Lat: 1, Lon: 1}
	if _, err := DistanceMeters(nil, p); !errors.Is(err, ErrMissingCoordinates) {
		t.Errorf("Expected ErrMissingCoordinates, got %v", err)
	}
	if _, err := DistanceMeters(p, nil); !errors.Is(err, ErrMissingCoordinates) {
		t.Errorf("Expected ErrMissingCoordinates, got %v", err)
	}
	if _, err := DistanceMeters(p, &Point{Lat: math.NaN(), Lon: 0}); !errors.Is(err, ErrMissingCoordinates) {
		t.Errorf("Expected ErrMissingCoordinates for NaN, got %v", err)
	}
}

func TestNewPoint(t *testing.T) {
	lat, lon := 1.5, 2.5
	if NewPoint(&lat, nil) != nil {
		t.Error("Expected nil point when longitude is missing")
	}
	p := NewPoint(&lat, &lon)
	if p == nil || p.Lat != 1.5 || p.Lon != 2.5 {
		t.Errorf("Unexpected point %v", p)
	}
}
