package domain

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// coordinatePlaces is the precision station coordinates are kept at.
const coordinatePlaces = 7

// RoundCoordinate rounds a latitude or longitude to the stored precision.
func RoundCoordinate(v float64) float64 {
	return round(v, coordinatePlaces)
}

// resTypes are the module types reported through the res bucket, in the
// order their readings are emitted.
var resTypes = []SensorType{SensorTemperature, SensorHumidity, SensorPressure}

// Normalize flattens every raw device into per-sensor readings. It fails on
// the first malformed device; use NormalizeDevice to isolate failures.
func Normalize(raw []RawDevice) ([]NormalizedDevice, error) {
	out := make([]NormalizedDevice, 0, len(raw))
	for _, r := range raw {
		d, err := NormalizeDevice(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// NormalizeDevice flattens one raw device. Readings follow the order of the
// modules in the payload.
func NormalizeDevice(raw RawDevice) (NormalizedDevice, error) {
	if raw.ID == "" {
		return NormalizedDevice{}, NewError(KindNormalization, "", errors.New("device without _id"))
	}
	if len(raw.Place.Location) != 2 {
		return NormalizedDevice{}, NewError(KindNormalization, raw.ID,
			fmt.Errorf("place.location has %d elements, want [lon, lat]", len(raw.Place.Location)))
	}

	dev := NormalizedDevice{
		DeviceID: raw.ID,
		Location: Coordinates{
			Lat: RoundCoordinate(raw.Place.Location[1]),
			Lon: RoundCoordinate(raw.Place.Location[0]),
		},
		Extras: Extras{
			Timezone: clonePtr(raw.Place.Timezone),
			Country:  clonePtr(raw.Place.Country),
			Altitude: clonePtr(raw.Place.Altitude),
			City:     clonePtr(raw.Place.City),
			Street:   clonePtr(raw.Place.Street),
		},
	}

	seen := make(map[SensorKey]bool)
	for _, m := range raw.Measures {
		readings, err := normalizeModule(m)
		if err != nil {
			return NormalizedDevice{}, NewError(KindNormalization, raw.ID, fmt.Errorf("module %s: %w", m.ModuleID, err))
		}
		for _, r := range readings {
			if seen[r.Key()] {
				return NormalizedDevice{}, NewError(KindNormalization, raw.ID, fmt.Errorf("duplicate sensor %s", r.Key()))
			}
			seen[r.Key()] = true
			dev.Sensors = append(dev.Sensors, r)
		}
	}
	return dev, nil
}

func normalizeModule(m RawModule) ([]SensorReading, error) {
	var out []SensorReading

	for _, t := range resTypes {
		idx := slices.Index(m.Type, string(t))
		if idx < 0 {
			continue
		}
		ts, values, err := singleBucket(m.Res)
		if err != nil {
			return nil, err
		}
		if idx >= len(values) || values[idx] == nil {
			return nil, fmt.Errorf("no %s value at index %d", t, idx)
		}
		out = append(out, SensorReading{ModuleID: m.ModuleID, Time: ts, Measurement: resMeasurement(t, *values[idx])})
	}

	if m.WindTimeUTC != nil {
		out = append(out, SensorReading{
			ModuleID: m.ModuleID,
			Time:     unixUTC(*m.WindTimeUTC),
			Measurement: Wind{
				Strength:     clonePtr(m.WindStrength),
				Angle:        clonePtr(m.WindAngle),
				GustStrength: clonePtr(m.GustStrength),
				GustAngle:    clonePtr(m.GustAngle),
			},
		})
	}

	if m.RainTimeUTC != nil {
		if m.Rain24h == nil {
			return nil, errors.New("rain module without rain_24h")
		}
		out = append(out, SensorReading{
			ModuleID:    m.ModuleID,
			Time:        unixUTC(*m.RainTimeUTC),
			Measurement: Rain{Hour: clonePtr(m.Rain60Min), Day: *m.Rain24h, Live: clonePtr(m.RainLive)},
		})
	}

	return out, nil
}

// singleBucket returns the timestamp and values of the first res bucket.
// Netatmo sends exactly one.
func singleBucket(res RawBuckets) (time.Time, []*float64, error) {
	if len(res) == 0 {
		return time.Time{}, nil, errors.New("res has no bucket")
	}
	sec, err := strconv.ParseInt(res[0].Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parse res timestamp %q: %w", res[0].Timestamp, err)
	}
	return unixUTC(sec), res[0].Values, nil
}

func resMeasurement(t SensorType, v float64) Measurement {
	switch t {
	case SensorTemperature:
		return Temperature{Celsius: v}
	case SensorHumidity:
		return Humidity{Percent: v}
	default:
		return Pressure{Hectopascal: v}
	}
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
