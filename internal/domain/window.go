package domain

import "fmt"

// BoundingBox is a latitude/longitude rectangle in degrees.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Region is the full area an ingest cycle covers.
type Region = BoundingBox

// Window is one tile of a Region, small enough for a single getpublicdata
// request.
type Window = BoundingBox

func (b BoundingBox) Validate() error {
	if b.North <= b.South {
		return fmt.Errorf("north %v must be greater than south %v", b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("east %v must be greater than west %v", b.East, b.West)
	}
	if b.North > 90 || b.South < -90 {
		return fmt.Errorf("latitude out of range: %v..%v", b.South, b.North)
	}
	if b.East > 180 || b.West < -180 {
		return fmt.Errorf("longitude out of range: %v..%v", b.West, b.East)
	}
	return nil
}

// Contains reports whether c lies inside b. Edges count as inside.
func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Lat >= b.South && c.Lat <= b.North && c.Lon >= b.West && c.Lon <= b.East
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[N %g S %g E %g W %g]", b.North, b.South, b.East, b.West)
}

// FilterWithin keeps the devices located inside w. Netatmo returns stations
// slightly outside the requested box; those are picked up by the window
// that actually contains them.
func FilterWithin(devices []NormalizedDevice, w Window) []NormalizedDevice {
	out := make([]NormalizedDevice, 0, len(devices))
	for _, d := range devices {
		if w.Contains(d.Location) {
			out = append(out, d)
		}
	}
	return out
}
