package domain

import "time"

// SensorType names the quantity a reading measures.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
	SensorPressure    SensorType = "pressure"
	SensorWind        SensorType = "wind"
	SensorRain        SensorType = "rain"
)

// Measurement is the type-specific payload of a SensorReading. The variants
// are Temperature, Humidity, Pressure, Wind and Rain.
type Measurement interface {
	Type() SensorType
	measurement()
}

// Temperature in degrees Celsius.
type Temperature struct{ Celsius float64 }

// Humidity as relative humidity in percent.
type Humidity struct{ Percent float64 }

// Pressure in hectopascal, adjusted to sea level by Netatmo.
type Pressure struct{ Hectopascal float64 }

// Wind holds five-minute averages (strength, angle) and maxima (gust) in km/h
// and degrees. Netatmo may omit any of them.
type Wind struct {
	Strength     *float64
	Angle        *float64
	GustStrength *float64
	GustAngle    *float64
}

// Rain holds the gauge totals in millimetres: the last hour, the running
// daily total and the live value. Only the daily total is always sent.
type Rain struct {
	Hour *float64
	Day  float64
	Live *float64
}

func (Temperature) Type() SensorType { return SensorTemperature }
func (Humidity) Type() SensorType    { return SensorHumidity }
func (Pressure) Type() SensorType    { return SensorPressure }
func (Wind) Type() SensorType        { return SensorWind }
func (Rain) Type() SensorType        { return SensorRain }

func (Temperature) measurement() {}
func (Humidity) measurement()    {}
func (Pressure) measurement()    {}
func (Wind) measurement()        {}
func (Rain) measurement()        {}

// SensorReading is one timestamped value from one module.
type SensorReading struct {
	ModuleID    string
	Time        time.Time
	Measurement Measurement
}

func (r SensorReading) Type() SensorType {
	if r.Measurement == nil {
		return ""
	}
	return r.Measurement.Type()
}

func (r SensorReading) Key() SensorKey {
	return SensorKey{ModuleID: r.ModuleID, Type: r.Type()}
}

// SensorKey identifies a sensor within a device.
type SensorKey struct {
	ModuleID string     `json:"moduleId"`
	Type     SensorType `json:"type"`
}

func (k SensorKey) String() string { return k.ModuleID + "/" + string(k.Type) }

type Coordinates struct {
	Lat float64
	Lon float64
}

// Extras is descriptive station metadata carried alongside the location.
// A nil field was not sent; an empty string was sent empty.
type Extras struct {
	Timezone *string  `json:"timezone,omitempty"`
	Country  *string  `json:"country,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
	City     *string  `json:"city,omitempty"`
	Street   *string  `json:"street,omitempty"`
}

// MergedWith overlays every field present in newer onto e.
func (e Extras) MergedWith(newer Extras) Extras {
	return Extras{
		Timezone: overlay(e.Timezone, newer.Timezone),
		Country:  overlay(e.Country, newer.Country),
		Altitude: overlay(e.Altitude, newer.Altitude),
		City:     overlay(e.City, newer.City),
		Street:   overlay(e.Street, newer.Street),
	}
}

func overlay[T any](old, newer *T) *T {
	if newer != nil {
		return clonePtr(newer)
	}
	return clonePtr(old)
}

// NormalizedDevice is a device with its modules flattened into one reading
// per sensor.
type NormalizedDevice struct {
	DeviceID string
	Location Coordinates
	Extras   Extras
	Sensors  []SensorReading
}
