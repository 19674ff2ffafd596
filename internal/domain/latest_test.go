package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestSensor_JSON(t *testing.T) {
	t.Run("rain document shape", func(t *testing.T) {
		data, err := json.Marshal(storedState(t).Sensors[3])
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"moduleId": "05:00:00:06:db:60",
			"type": "rain",
			"time": "2020-02-12T10:56:53.333Z",
			"hasBeginning": "2020-02-12T10:46:53.111Z",
			"hasEnd": "2020-02-12T10:56:53.333Z",
			"rainHour": 0.202,
			"rainDay": 0.404,
			"rainLive": 0.101,
			"rainRate": 0.61,
			"rainAccumulation": 0.101
		}`, string(data))
	})

	t.Run("state round trip", func(t *testing.T) {
		state := storedState(t)
		data, err := json.Marshal(state)
		require.NoError(t, err)

		var decoded LatestDeviceState
		require.NoError(t, json.Unmarshal(data, &decoded))
		if diff := cmp.Diff(state, decoded); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("partial period is dropped", func(t *testing.T) {
		var s LatestSensor
		require.NoError(t, json.Unmarshal([]byte(`{"moduleId":"m","type":"wind","time":"2020-02-12T11:00:00Z","hasEnd":"2020-02-12T11:00:00Z","windAngle":10}`), &s))
		assert.Nil(t, s.Period)
		assert.Equal(t, 10.0, *s.Measurement.(Wind).Angle)
	})

	t.Run("rain without hourly or live total", func(t *testing.T) {
		var s LatestSensor
		require.NoError(t, json.Unmarshal([]byte(`{"moduleId":"m","type":"rain","time":"2020-02-12T11:00:00Z","rainDay":1.2}`), &s))
		assert.Equal(t, Rain{Day: 1.2}, s.Measurement)

		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "rainHour")
		assert.NotContains(t, string(data), "rainLive")
	})

	t.Run("rain fields ignored on other types", func(t *testing.T) {
		var s LatestSensor
		require.NoError(t, json.Unmarshal([]byte(`{"moduleId":"m","type":"temperature","time":"2020-02-12T11:00:00Z","temperature":4,"rainRate":1}`), &s))
		assert.Nil(t, s.RainRate)
	})

	invalid := []struct {
		name string
		json string
	}{
		{"unknown type", `{"moduleId":"m","type":"snow","time":"2020-02-12T11:00:00Z"}`},
		{"temperature without value", `{"moduleId":"m","type":"temperature","time":"2020-02-12T11:00:00Z"}`},
		{"rain without daily total", `{"moduleId":"m","type":"rain","time":"2020-02-12T11:00:00Z","rainHour":1}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			var s LatestSensor
			assert.Error(t, json.Unmarshal([]byte(tt.json), &s))
		})
	}
}

func TestNewLatestState(t *testing.T) {
	now := time.Date(2020, 2, 12, 11, 10, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	defer SetClock(nil)

	devices, err := Normalize(loadPublicData(t))
	require.NoError(t, err)

	state := NewLatestState(devices[0])
	assert.Equal(t, testDeviceID, state.DeviceID)
	assert.Equal(t, 52.461884, state.Location.Lat)
	assert.Equal(t, -1.949845, state.Location.Lon)
	assert.Equal(t, now, state.Location.ValidAt)
	_, err = uuid.Parse(state.Location.ID)
	require.NoError(t, err)
	assert.Equal(t, testExtras(), state.Extras)
	require.Len(t, state.Sensors, 5)

	rain := state.Sensors[3]
	assert.Nil(t, rain.Period)
	assert.Nil(t, rain.RainRate)

	wind := state.Sensors[4]
	require.NotNil(t, wind.Period)
	assert.Equal(t, time.Unix(1581094859-300, 0).UTC(), wind.Period.HasBeginning)
	assert.Equal(t, time.Unix(1581094859, 0).UTC(), wind.Period.HasEnd)

	// Rain never projects on first sighting, so five sensors give seven observations.
	assert.Len(t, Project(state), 7)
}

func TestPruneStaleSensors(t *testing.T) {
	state := storedState(t)
	newest := mustTime(t, "2020-02-12T11:00:54.899Z")

	t.Run("disabled", func(t *testing.T) {
		out, pruned := PruneStaleSensors(state, 0)
		assert.Len(t, out.Sensors, 5)
		assert.Empty(t, pruned)
	})

	t.Run("nothing stale", func(t *testing.T) {
		out, pruned := PruneStaleSensors(state, time.Hour)
		assert.Len(t, out.Sensors, 5)
		assert.Empty(t, pruned)
	})

	t.Run("swapped module", func(t *testing.T) {
		old := state.Clone()
		old.Sensors = append(old.Sensors, LatestSensor{
			SensorReading: SensorReading{ModuleID: "05:00:00:00:00:01", Time: newest.Add(-25 * time.Hour), Measurement: Rain{}},
		})

		out, pruned := PruneStaleSensors(old, 24*time.Hour)
		assert.Len(t, out.Sensors, 5)
		assert.Equal(t, []SensorKey{{ModuleID: "05:00:00:00:00:01", Type: SensorRain}}, pruned)
	})

	t.Run("empty state", func(t *testing.T) {
		out, pruned := PruneStaleSensors(LatestDeviceState{DeviceID: "d"}, time.Hour)
		assert.Empty(t, out.Sensors)
		assert.Empty(t, pruned)
	})
}

func TestLatestDeviceState_Clone(t *testing.T) {
	state := storedState(t)
	clone := state.Clone()

	*clone.Extras.Altitude = 1
	*clone.Sensors[3].RainAccumulation = 9
	clone.Sensors[0].Time = time.Time{}

	assert.Equal(t, 160.0, *state.Extras.Altitude)
	assert.Equal(t, 0.101, *state.Sensors[3].RainAccumulation)
	assert.False(t, state.Sensors[0].Time.IsZero())
}

func TestLatestDeviceState_Patch(t *testing.T) {
	state := storedState(t)
	patch := state.Patch()
	assert.Equal(t, state.Location, patch.Location)
	assert.Equal(t, state.Extras, patch.Extras)
	assert.Equal(t, state.Sensors, patch.Sensors)
}

func TestExtras_MergedWith(t *testing.T) {
	base := testExtras()

	assert.Equal(t, base, base.MergedWith(Extras{}))

	merged := base.MergedWith(Extras{City: str("Solihull"), Altitude: ptr(120), Street: str("")})
	assert.Equal(t, "Solihull", *merged.City)
	assert.Equal(t, 120.0, *merged.Altitude)
	assert.Empty(t, *merged.Street, "a street sent empty replaces the stored one")
	assert.Equal(t, "Europe/London", *merged.Timezone)
	assert.Equal(t, 160.0, *base.Altitude)
	assert.Equal(t, "Park Hill Road", *base.Street)
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))
		assert.Equal(t, fixedTime, clock.Now())
		SetClock(nil)
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)
		assert.True(t, time.Since(clock.Now()) < time.Second)
	})
}
