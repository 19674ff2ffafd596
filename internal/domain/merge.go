package domain

import (
	"fmt"
	"time"
)

const (
	// rainGapLimit is the longest gap between two rain totals that still
	// yields a depth and rate.
	rainGapLimit = 30 * time.Minute
	// windAveragingWindow is the span Netatmo averages wind over.
	windAveragingWindow = 5 * time.Minute
)

// Decision records what Merge did with an incoming reading.
type Decision int

const (
	DecisionNoPreviousData Decision = iota + 1
	DecisionOverwrite
	DecisionReuse
)

func (d Decision) String() string {
	switch d {
	case DecisionNoPreviousData:
		return "no-previous-data"
	case DecisionOverwrite:
		return "overwrite-with-new-data"
	case DecisionReuse:
		return "reuse-old-data"
	default:
		return "unknown"
	}
}

// Decide picks the Decision for an incoming reading given the stored sensor
// with the same key, which may be nil.
func Decide(incoming SensorReading, previous *LatestSensor) Decision {
	switch {
	case previous == nil:
		return DecisionNoPreviousData
	case incoming.Time.After(previous.Time):
		return DecisionOverwrite
	default:
		return DecisionReuse
	}
}

type SensorDecision struct {
	Key      SensorKey
	Decision Decision
}

// MergeResult is the outcome of Merge. Updated lists, in payload order, the
// sensors whose value was adopted from the payload. DerivationErrors holds
// rain derivations that were dropped; the readings themselves were adopted.
type MergeResult struct {
	Combined         LatestDeviceState
	Updated          []SensorKey
	Decisions        []SensorDecision
	DerivationErrors []error
}

// Merge folds a freshly normalized device into its stored snapshot.
//
// The location keeps its id unless the coordinates changed. Extras are
// overlaid. Each incoming sensor is adopted when it has no stored
// counterpart or is strictly newer than it; otherwise the stored sensor is
// kept as is, derived fields included. Stored sensors missing from the
// payload follow the payload-driven ones in their stored order.
func Merge(incoming NormalizedDevice, existing LatestDeviceState) (MergeResult, error) {
	if incoming.DeviceID != existing.DeviceID {
		return MergeResult{}, NewError(KindDeviceMismatch, incoming.DeviceID,
			fmt.Errorf("stored state belongs to %q", existing.DeviceID))
	}

	combined := LatestDeviceState{
		DeviceID:  existing.DeviceID,
		Location:  mergeLocation(existing.Location, incoming.Location),
		Extras:    existing.Extras.MergedWith(incoming.Extras),
		Sensors:   make([]LatestSensor, 0, len(incoming.Sensors)+len(existing.Sensors)),
		CreatedAt: existing.CreatedAt,
		UpdatedAt: existing.UpdatedAt,
	}

	var res MergeResult
	seen := make(map[SensorKey]bool)
	for _, reading := range incoming.Sensors {
		key := reading.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		previous := existing.Sensor(key)
		decision := Decide(reading, previous)
		res.Decisions = append(res.Decisions, SensorDecision{Key: key, Decision: decision})

		if decision == DecisionReuse {
			combined.Sensors = append(combined.Sensors, previous.clone())
			continue
		}
		sensor, err := adopt(reading, previous, decision)
		if err != nil {
			res.DerivationErrors = append(res.DerivationErrors, err)
		}
		combined.Sensors = append(combined.Sensors, sensor)
		res.Updated = append(res.Updated, key)
	}

	for _, s := range existing.Sensors {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		combined.Sensors = append(combined.Sensors, s.clone())
	}

	res.Combined = combined
	return res, nil
}

func mergeLocation(stored LatestLocation, incoming Coordinates) LatestLocation {
	if stored.ID != "" && stored.Lat == incoming.Lat && stored.Lon == incoming.Lon {
		return stored
	}
	return newLocation(incoming)
}

// adopt turns an incoming reading into a stored sensor, deriving what its
// type calls for. On a rain rate failure the reading is still returned,
// without derivation, alongside the error.
func adopt(reading SensorReading, previous *LatestSensor, decision Decision) (LatestSensor, error) {
	sensor := LatestSensor{SensorReading: reading}.clone()

	switch m := reading.Measurement.(type) {
	case Wind:
		sensor.Period = &Period{HasBeginning: reading.Time.Add(-windAveragingWindow), HasEnd: reading.Time}
	case Rain:
		if decision != DecisionOverwrite || previous == nil {
			break
		}
		prev, ok := previous.Measurement.(Rain)
		if !ok || reading.Time.Sub(previous.Time) >= rainGapLimit {
			break
		}
		depth := m.Day
		if m.Day >= prev.Day {
			depth = m.Day - prev.Day
		}
		depth = round(depth, 3)
		rate, err := CalculateRainRate(previous.Time, reading.Time, depth)
		if err != nil {
			return sensor, fmt.Errorf("derive rain for module %s: %w", reading.ModuleID, err)
		}
		sensor.Period = &Period{HasBeginning: previous.Time, HasEnd: reading.Time}
		sensor.RainAccumulation = &depth
		sensor.RainRate = &rate
	}
	return sensor, nil
}
