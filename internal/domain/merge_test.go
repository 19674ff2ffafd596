package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	result, err := Merge(incomingDevice(t), storedState(t))
	require.NoError(t, err)
	assert.Empty(t, result.DerivationErrors)

	expected := storedState(t)
	expected.Sensors = []LatestSensor{
		{SensorReading: SensorReading{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T11:07:24.818Z"), Measurement: Temperature{Celsius: 6.7}}},
		{SensorReading: SensorReading{ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T11:07:24.818Z"), Measurement: Humidity{Percent: 81}}},
		{SensorReading: SensorReading{ModuleID: testDeviceID, Time: mustTime(t, "2020-02-12T11:00:54.899Z"), Measurement: Pressure{Hectopascal: 1012.2}}},
		{
			SensorReading:    SensorReading{ModuleID: testRainID, Time: mustTime(t, "2020-02-12T11:06:59.228Z"), Measurement: Rain{Hour: ptr(0.404), Day: 0.606, Live: ptr(0.101)}},
			Period:           &Period{HasBeginning: mustTime(t, "2020-02-12T10:56:53.333Z"), HasEnd: mustTime(t, "2020-02-12T11:06:59.228Z")},
			RainRate:         ptr(1.2),
			RainAccumulation: ptr(0.202),
		},
		{
			SensorReading: SensorReading{ModuleID: testWindID, Time: mustTime(t, "2020-02-12T11:05:44.118Z"), Measurement: Wind{
				Strength: ptr(6), Angle: ptr(59), GustStrength: ptr(10), GustAngle: ptr(125),
			}},
			Period: &Period{HasBeginning: mustTime(t, "2020-02-12T11:00:44.118Z"), HasEnd: mustTime(t, "2020-02-12T11:05:44.118Z")},
		},
	}
	if diff := cmp.Diff(expected, result.Combined); diff != "" {
		t.Errorf("combined state mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []SensorKey{
		{ModuleID: testIndoorID, Type: SensorTemperature},
		{ModuleID: testIndoorID, Type: SensorHumidity},
		{ModuleID: testRainID, Type: SensorRain},
		{ModuleID: testWindID, Type: SensorWind},
	}, result.Updated)

	assert.Equal(t, []SensorDecision{
		{Key: SensorKey{ModuleID: testIndoorID, Type: SensorTemperature}, Decision: DecisionOverwrite},
		{Key: SensorKey{ModuleID: testIndoorID, Type: SensorHumidity}, Decision: DecisionOverwrite},
		{Key: SensorKey{ModuleID: testDeviceID, Type: SensorPressure}, Decision: DecisionReuse},
		{Key: SensorKey{ModuleID: testRainID, Type: SensorRain}, Decision: DecisionOverwrite},
		{Key: SensorKey{ModuleID: testWindID, Type: SensorWind}, Decision: DecisionOverwrite},
	}, result.Decisions)
}

func TestMerge_DeviceMismatch(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.DeviceID = "70:ee:50:00:00:02"
	_, err := Merge(incoming, storedState(t))
	require.Error(t, err)
	assert.Equal(t, KindDeviceMismatch, KindOf(err))
}

func TestMerge_IsIdempotent(t *testing.T) {
	first, err := Merge(incomingDevice(t), storedState(t))
	require.NoError(t, err)

	second, err := Merge(incomingDevice(t), first.Combined)
	require.NoError(t, err)

	assert.Empty(t, second.Updated)
	if diff := cmp.Diff(first.Combined, second.Combined); diff != "" {
		t.Errorf("second merge changed state (-first +second):\n%s", diff)
	}
}

func TestMerge_OlderReadingKeepsStoredSensor(t *testing.T) {
	stored := storedState(t)
	incoming := incomingDevice(t)
	incoming.Sensors = []SensorReading{
		{ModuleID: testRainID, Time: mustTime(t, "2020-02-12T10:40:00Z"), Measurement: Rain{Day: 9}},
	}

	result, err := Merge(incoming, stored)
	require.NoError(t, err)
	assert.Empty(t, result.Updated)

	rain := result.Combined.Sensor(SensorKey{ModuleID: testRainID, Type: SensorRain})
	require.NotNil(t, rain)
	assert.Equal(t, stored.Sensors[3].Time, rain.Time)
	assert.Equal(t, 0.61, *rain.RainRate)
	assert.Equal(t, 0.101, *rain.RainAccumulation)
}

func TestMerge_AbsentSensorsRetainedInStoredOrder(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.Sensors = incoming.Sensors[3:4] // rain only

	result, err := Merge(incoming, storedState(t))
	require.NoError(t, err)

	var keys []SensorKey
	for _, s := range result.Combined.Sensors {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []SensorKey{
		{ModuleID: testRainID, Type: SensorRain},
		{ModuleID: testIndoorID, Type: SensorTemperature},
		{ModuleID: testIndoorID, Type: SensorHumidity},
		{ModuleID: testDeviceID, Type: SensorPressure},
		{ModuleID: testWindID, Type: SensorWind},
	}, keys)
}

func TestMerge_SwappedModuleAddsSensor(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.Sensors = []SensorReading{
		{ModuleID: "05:00:00:06:ff:ff", Time: mustTime(t, "2020-02-12T11:06:59.228Z"), Measurement: Rain{Day: 0.2}},
	}

	result, err := Merge(incoming, storedState(t))
	require.NoError(t, err)
	assert.Len(t, result.Combined.Sensors, 6)

	added := result.Combined.Sensors[0]
	assert.Equal(t, "05:00:00:06:ff:ff", added.ModuleID)
	assert.Nil(t, added.Period)
	assert.Nil(t, added.RainRate)
	assert.Equal(t, []SensorDecision{{Key: added.Key(), Decision: DecisionNoPreviousData}}, result.Decisions)
}

func TestMerge_Rain(t *testing.T) {
	prevTime := mustTime(t, "2020-02-12T10:00:00Z")
	stored := LatestDeviceState{
		DeviceID: testDeviceID,
		Location: LatestLocation{Lat: 1, Lon: 2, ID: testLocationID},
		Sensors: []LatestSensor{
			{SensorReading: SensorReading{ModuleID: testRainID, Time: prevTime, Measurement: Rain{Day: 3.5}}},
		},
	}

	tests := []struct {
		name          string
		gap           time.Duration
		day           float64
		expectPeriod  bool
		expectedDepth float64
		expectedRate  float64
	}{
		{"accumulating", 10 * time.Minute, 4.0, true, 0.5, 3},
		{"dry", 10 * time.Minute, 3.5, true, 0, 0},
		{"daily roll-over", 10 * time.Minute, 0.3, true, 0.3, 1.8},
		{"gap just under limit", 29*time.Minute + 59*time.Second, 4.0, true, 0.5, 1},
		{"gap at limit", 30 * time.Minute, 4.0, false, 0, 0},
		{"gap beyond limit", 2 * time.Hour, 4.0, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incoming := NormalizedDevice{
				DeviceID: testDeviceID,
				Location: Coordinates{Lat: 1, Lon: 2},
				Sensors: []SensorReading{
					{ModuleID: testRainID, Time: prevTime.Add(tt.gap), Measurement: Rain{Day: tt.day}},
				},
			}
			result, err := Merge(incoming, stored)
			require.NoError(t, err)
			require.Len(t, result.Updated, 1)

			rain := result.Combined.Sensors[0]
			if !tt.expectPeriod {
				assert.Nil(t, rain.Period)
				assert.Nil(t, rain.RainRate)
				assert.Nil(t, rain.RainAccumulation)
				return
			}
			require.NotNil(t, rain.Period)
			assert.Equal(t, prevTime, rain.Period.HasBeginning)
			assert.Equal(t, prevTime.Add(tt.gap), rain.Period.HasEnd)
			assert.InDelta(t, tt.expectedDepth, *rain.RainAccumulation, 1e-9)
			assert.InDelta(t, tt.expectedRate, *rain.RainRate, 1e-9)
		})
	}
}

func TestMerge_WindWindowOnFirstSighting(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.Sensors = incoming.Sensors[4:]
	stored := storedState(t)
	stored.Sensors = nil

	result, err := Merge(incoming, stored)
	require.NoError(t, err)
	require.Len(t, result.Combined.Sensors, 1)
	wind := result.Combined.Sensors[0]
	require.NotNil(t, wind.Period)
	assert.Equal(t, mustTime(t, "2020-02-12T11:00:44.118Z"), wind.Period.HasBeginning)
	assert.Equal(t, DecisionNoPreviousData, result.Decisions[0].Decision)
}

func TestMerge_LocationChange(t *testing.T) {
	now := time.Date(2020, 2, 12, 11, 10, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	defer SetClock(nil)

	incoming := incomingDevice(t)
	incoming.Location = Coordinates{Lat: 52.4618841, Lon: -1.949845}

	result, err := Merge(incoming, storedState(t))
	require.NoError(t, err)

	loc := result.Combined.Location
	assert.NotEqual(t, testLocationID, loc.ID)
	_, err = uuid.Parse(loc.ID)
	assert.NoError(t, err)
	assert.Equal(t, now, loc.ValidAt)
	assert.Equal(t, 52.4618841, loc.Lat)
}

func TestMerge_ExtrasOverlay(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.Extras = Extras{Street: str("Harborne Road"), City: str("")}

	result, err := Merge(incoming, storedState(t))
	require.NoError(t, err)

	want := testExtras()
	want.Street = str("Harborne Road")
	want.City = str("")
	assert.Equal(t, want, result.Combined.Extras)
}

func TestMerge_DuplicateIncomingSensor(t *testing.T) {
	incoming := incomingDevice(t)
	incoming.Sensors = append(incoming.Sensors, SensorReading{
		ModuleID: testIndoorID, Time: mustTime(t, "2020-02-12T11:30:00Z"), Measurement: Temperature{Celsius: 99},
	})

	result, err := Merge(incoming, storedState(t))
	require.NoError(t, err)
	assert.Len(t, result.Combined.Sensors, 5)
	temp := result.Combined.Sensor(SensorKey{ModuleID: testIndoorID, Type: SensorTemperature})
	assert.Equal(t, Temperature{Celsius: 6.7}, temp.Measurement)
}

func TestMerge_DoesNotAliasExisting(t *testing.T) {
	stored := storedState(t)
	incoming := incomingDevice(t)
	incoming.Sensors = nil

	result, err := Merge(incoming, stored)
	require.NoError(t, err)

	rain := result.Combined.Sensor(SensorKey{ModuleID: testRainID, Type: SensorRain})
	*rain.RainRate = 42
	rain.Period.HasEnd = time.Time{}
	*result.Combined.Sensors[4].Measurement.(Wind).Strength = 42

	assert.Equal(t, 0.61, *stored.Sensors[3].RainRate)
	assert.False(t, stored.Sensors[3].Period.HasEnd.IsZero())
	assert.Equal(t, 5.0, *stored.Sensors[4].Measurement.(Wind).Strength)
}

func TestDecide(t *testing.T) {
	base := mustTime(t, "2020-02-12T11:00:00Z")
	prev := &LatestSensor{SensorReading: SensorReading{ModuleID: "m", Time: base, Measurement: Temperature{}}}

	tests := []struct {
		name     string
		time     time.Time
		previous *LatestSensor
		expected Decision
	}{
		{"no previous", base, nil, DecisionNoPreviousData},
		{"newer", base.Add(time.Millisecond), prev, DecisionOverwrite},
		{"same time", base, prev, DecisionReuse},
		{"older", base.Add(-time.Minute), prev, DecisionReuse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := SensorReading{ModuleID: "m", Time: tt.time, Measurement: Temperature{}}
			assert.Equal(t, tt.expected, Decide(reading, tt.previous))
		})
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "no-previous-data", DecisionNoPreviousData.String())
	assert.Equal(t, "overwrite-with-new-data", DecisionOverwrite.String())
	assert.Equal(t, "reuse-old-data", DecisionReuse.String())
}
