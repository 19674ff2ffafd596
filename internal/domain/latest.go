package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// LatestLocation is the station location as last stored. ID changes only
// when the coordinates change; ValidAt records when that happened.
type LatestLocation struct {
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	ID      string    `json:"id"`
	ValidAt time.Time `json:"validAt"`
}

// Period is the interval a derived or averaged value covers.
type Period struct {
	HasBeginning time.Time
	HasEnd       time.Time
}

// LatestSensor is a stored reading plus whatever was derived when it was
// adopted. Period is set for wind and for rain with a derivation; the rain
// fields only ever appear on rain sensors.
type LatestSensor struct {
	SensorReading
	Period           *Period
	RainRate         *float64
	RainAccumulation *float64
}

func (s LatestSensor) clone() LatestSensor {
	out := s
	if s.Period != nil {
		p := *s.Period
		out.Period = &p
	}
	out.RainRate = clonePtr(s.RainRate)
	out.RainAccumulation = clonePtr(s.RainAccumulation)
	switch m := s.Measurement.(type) {
	case Wind:
		out.Measurement = Wind{
			Strength:     clonePtr(m.Strength),
			Angle:        clonePtr(m.Angle),
			GustStrength: clonePtr(m.GustStrength),
			GustAngle:    clonePtr(m.GustAngle),
		}
	case Rain:
		out.Measurement = Rain{Hour: clonePtr(m.Hour), Day: m.Day, Live: clonePtr(m.Live)}
	}
	return out
}

// LatestDeviceState is the stored snapshot of a device. CreatedAt and
// UpdatedAt are maintained by the store.
type LatestDeviceState struct {
	DeviceID  string         `json:"deviceId"`
	Location  LatestLocation `json:"location"`
	Extras    Extras         `json:"extras"`
	Sensors   []LatestSensor `json:"sensors"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// Sensor returns the stored sensor for key, or nil.
func (s LatestDeviceState) Sensor(key SensorKey) *LatestSensor {
	for i := range s.Sensors {
		if s.Sensors[i].Key() == key {
			return &s.Sensors[i]
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s LatestDeviceState) Clone() LatestDeviceState {
	out := s
	out.Extras = s.Extras.MergedWith(Extras{})
	out.Sensors = make([]LatestSensor, len(s.Sensors))
	for i, sensor := range s.Sensors {
		out.Sensors[i] = sensor.clone()
	}
	return out
}

// Patch returns the fields an update writes.
func (s LatestDeviceState) Patch() LatestPatch {
	return LatestPatch{Location: s.Location, Extras: s.Extras, Sensors: s.Sensors}
}

// LatestPatch is the replacement content for an existing device's snapshot.
type LatestPatch struct {
	Location LatestLocation `json:"location"`
	Extras   Extras         `json:"extras"`
	Sensors  []LatestSensor `json:"sensors"`
}

// NewLatestState builds the first snapshot of a device never seen before.
// Every sensor is adopted as new data, so wind readings get their averaging
// window immediately.
func NewLatestState(device NormalizedDevice) LatestDeviceState {
	state := LatestDeviceState{
		DeviceID: device.DeviceID,
		Location: newLocation(device.Location),
		Extras:   Extras{}.MergedWith(device.Extras),
		Sensors:  make([]LatestSensor, 0, len(device.Sensors)),
	}
	seen := make(map[SensorKey]bool, len(device.Sensors))
	for _, reading := range device.Sensors {
		if seen[reading.Key()] {
			continue
		}
		seen[reading.Key()] = true
		sensor, _ := adopt(reading, nil, DecisionNoPreviousData)
		state.Sensors = append(state.Sensors, sensor)
	}
	return state
}

func newLocation(c Coordinates) LatestLocation {
	return LatestLocation{
		Lat:     c.Lat,
		Lon:     c.Lon,
		ID:      uuid.NewString(),
		ValidAt: clock.Now().UTC(),
	}
}

// RestrictToSensors returns a copy of state holding only the sensors in keys,
// in stored order.
func RestrictToSensors(state LatestDeviceState, keys []SensorKey) LatestDeviceState {
	out := state
	out.Sensors = make([]LatestSensor, 0, len(keys))
	for _, s := range state.Sensors {
		if slices.Contains(keys, s.Key()) {
			out.Sensors = append(out.Sensors, s.clone())
		}
	}
	return out
}

// PruneStaleSensors drops sensors whose reading is more than ttl older than
// the newest reading of the device, and returns the keys it dropped. This
// clears out modules that were swapped or removed from a station. A ttl of
// zero or less disables pruning.
func PruneStaleSensors(state LatestDeviceState, ttl time.Duration) (LatestDeviceState, []SensorKey) {
	if ttl <= 0 || len(state.Sensors) == 0 {
		return state, nil
	}
	var newest time.Time
	for _, s := range state.Sensors {
		if s.Time.After(newest) {
			newest = s.Time
		}
	}
	var pruned []SensorKey
	kept := make([]LatestSensor, 0, len(state.Sensors))
	for _, s := range state.Sensors {
		if newest.Sub(s.Time) > ttl {
			pruned = append(pruned, s.Key())
			continue
		}
		kept = append(kept, s)
	}
	state.Sensors = kept
	return state, pruned
}

// sensorDocument is the stored shape of a LatestSensor: one flat object with
// the fields of its type.
type sensorDocument struct {
	ModuleID     string     `json:"moduleId"`
	Type         SensorType `json:"type"`
	Time         time.Time  `json:"time"`
	HasBeginning *time.Time `json:"hasBeginning,omitempty"`
	HasEnd       *time.Time `json:"hasEnd,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`

	WindStrength *float64 `json:"windStrength,omitempty"`
	WindAngle    *float64 `json:"windAngle,omitempty"`
	GustStrength *float64 `json:"gustStrength,omitempty"`
	GustAngle    *float64 `json:"gustAngle,omitempty"`

	RainHour         *float64 `json:"rainHour,omitempty"`
	RainDay          *float64 `json:"rainDay,omitempty"`
	RainLive         *float64 `json:"rainLive,omitempty"`
	RainRate         *float64 `json:"rainRate,omitempty"`
	RainAccumulation *float64 `json:"rainAccumulation,omitempty"`
}

func (s LatestSensor) MarshalJSON() ([]byte, error) {
	doc := sensorDocument{
		ModuleID: s.ModuleID,
		Type:     s.Type(),
		Time:     s.Time.UTC(),
	}
	if s.Period != nil {
		b, e := s.Period.HasBeginning.UTC(), s.Period.HasEnd.UTC()
		doc.HasBeginning, doc.HasEnd = &b, &e
	}
	switch m := s.Measurement.(type) {
	case Temperature:
		doc.Temperature = &m.Celsius
	case Humidity:
		doc.Humidity = &m.Percent
	case Pressure:
		doc.Pressure = &m.Hectopascal
	case Wind:
		doc.WindStrength, doc.WindAngle = m.Strength, m.Angle
		doc.GustStrength, doc.GustAngle = m.GustStrength, m.GustAngle
	case Rain:
		doc.RainHour, doc.RainDay, doc.RainLive = m.Hour, &m.Day, m.Live
		doc.RainRate, doc.RainAccumulation = s.RainRate, s.RainAccumulation
	default:
		return nil, fmt.Errorf("sensor %s has no measurement", s.ModuleID)
	}
	return json.Marshal(doc)
}

func (s *LatestSensor) UnmarshalJSON(data []byte) error {
	var doc sensorDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := LatestSensor{SensorReading: SensorReading{ModuleID: doc.ModuleID, Time: doc.Time.UTC()}}
	if doc.HasBeginning != nil && doc.HasEnd != nil {
		out.Period = &Period{HasBeginning: doc.HasBeginning.UTC(), HasEnd: doc.HasEnd.UTC()}
	}

	var missing string
	switch doc.Type {
	case SensorTemperature:
		if doc.Temperature == nil {
			missing = "temperature"
			break
		}
		out.Measurement = Temperature{Celsius: *doc.Temperature}
	case SensorHumidity:
		if doc.Humidity == nil {
			missing = "humidity"
			break
		}
		out.Measurement = Humidity{Percent: *doc.Humidity}
	case SensorPressure:
		if doc.Pressure == nil {
			missing = "pressure"
			break
		}
		out.Measurement = Pressure{Hectopascal: *doc.Pressure}
	case SensorWind:
		out.Measurement = Wind{
			Strength:     doc.WindStrength,
			Angle:        doc.WindAngle,
			GustStrength: doc.GustStrength,
			GustAngle:    doc.GustAngle,
		}
	case SensorRain:
		if doc.RainDay == nil {
			missing = "rainDay"
			break
		}
		out.Measurement = Rain{Hour: doc.RainHour, Day: *doc.RainDay, Live: doc.RainLive}
		out.RainRate, out.RainAccumulation = doc.RainRate, doc.RainAccumulation
	default:
		return fmt.Errorf("sensor %s: unknown type %q", doc.ModuleID, doc.Type)
	}
	if missing != "" {
		return fmt.Errorf("sensor %s: %s sensor without %s", doc.ModuleID, doc.Type, missing)
	}
	*s = out
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
