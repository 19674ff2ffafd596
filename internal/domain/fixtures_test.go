package domain

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testDeviceID   = "70:ee:50:17:eb:1a"
	testIndoorID   = "02:00:00:17:68:62"
	testRainID     = "05:00:00:06:db:60"
	testWindID     = "06:00:00:04:1f:4e"
	testLocationID = "7cde49a7-adc5-423d-9cc0-1f78994f7f40"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts.UTC()
}

func ptr(f float64) *float64 { return &f }

func str(s string) *string { return &s }

func loadPublicData(t *testing.T) []RawDevice {
	t.Helper()
	data, err := os.ReadFile("testdata/publicdata.json")
	require.NoError(t, err)
	var devices []RawDevice
	require.NoError(t, json.Unmarshal(data, &devices))
	return devices
}

func testExtras() Extras {
	return Extras{
		Timezone: str("Europe/London"),
		Country:  str("GB"),
		Altitude: ptr(160),
		City:     str("Birmingham"),
		Street:   str("Park Hill Road"),
	}
}

// storedState is the snapshot from the 10:57 cycle.
func storedState(t *testing.T) LatestDeviceState {
	return LatestDeviceState{
		DeviceID: testDeviceID,
		Location: LatestLocation{
			Lat:     52.461884,
			Lon:     -1.949845,
			ID:      testLocationID,
			ValidAt: mustTime(t, "2020-01-11T08:02:55.999Z"),
		},
		Extras: testExtras(),
		Sensors: []LatestSensor{
			{SensorReading: SensorReading{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T10:57:25.222Z"), Measurement: Temperature{Celsius: 6.5}}},
			{SensorReading: SensorReading{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T10:57:25.222Z"), Measurement: Humidity{Percent: 83}}},
			{SensorReading: SensorReading{ModuleID: testDeviceID, Time: mustTime(t, "2020-02-12T11:00:54.899Z"), Measurement: Pressure{Hectopascal: 1012.2}}},
			{
				SensorReading:    SensorReading{ModuleID: testRainID, Time: mustTime(t, "2020-02-12T10:56:53.333Z"), Measurement: Rain{Hour: ptr(0.202), Day: 0.404, Live: ptr(0.101)}},
				Period:           &Period{HasBeginning: mustTime(t, "2020-02-12T10:46:53.111Z"), HasEnd: mustTime(t, "2020-02-12T10:56:53.333Z")},
				RainRate:         ptr(0.61),
				RainAccumulation: ptr(0.101),
			},
			{
				SensorReading: SensorReading{ModuleID: testWindID, Time: mustTime(t, "2020-02-12T10:55:44.988Z"), Measurement: Wind{
					Strength: ptr(5), Angle: ptr(61), GustStrength: ptr(11), GustAngle: ptr(130),
				}},
				Period: &Period{HasBeginning: mustTime(t, "2020-02-12T10:50:44.988Z"), HasEnd: mustTime(t, "2020-02-12T10:55:44.988Z")},
			},
		},
	}
}

// incomingDevice is the payload of the 11:07 cycle. Pressure has not moved on.
func incomingDevice(t *testing.T) NormalizedDevice {
	return NormalizedDevice{
		DeviceID: testDeviceID,
		Location: Coordinates{Lat: 52.461884, Lon: -1.949845},
		Extras:   testExtras(),
		Sensors: []SensorReading{
			{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T11:07:24.818Z"), Measurement: Temperature{Celsius: 6.7}},
			{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T11:07:24.818Z"), Measurement: Humidity{Percent: 81}},
			{ModuleID: testDeviceID, Time: mustTime(t, "2020-02-12T11:00:54.899Z"), Measurement: Pressure{Hectopascal: 1012.2}},
			{ModuleID: testRainID, Time: mustTime(t, "2020-02-12T11:06:59.228Z"), Measurement: Rain{Hour: ptr(0.404), Day: 0.606, Live: ptr(0.101)}},
			{ModuleID: testWindID, Time: mustTime(t, "2020-02-12T11:05:44.118Z"), Measurement: Wind{
				Strength: ptr(6), Angle: ptr(59), GustStrength: ptr(10), GustAngle: ptr(125),
			}},
		},
	}
}
