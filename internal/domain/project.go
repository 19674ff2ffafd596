package domain

import "slices"

// Procedures recorded on each observation.
var (
	temperatureProcedures = []string{"netatmo-temperature-instantaneous"}
	humidityProcedures    = []string{"netatmo-humidity-instantaneous"}
	pressureProcedures    = []string{"netatmo-pressure-instantaneous", "netatmo-pressure-adjusted-to-sea-level"}
	rainRateProcedures    = []string{"uo-netatmo-precip-rate-derivation"}
	rainDepthProcedures   = []string{"uo-netatmo-precip-depth-derivation"}
	windSpeedProcedures   = []string{"netatmo-wind-speed-5-min-average", "kilometre-per-hour-to-metre-per-second"}
	windDirProcedures     = []string{"netatmo-wind-direction-5-min-average"}
	gustSpeedProcedures   = []string{"netatmo-wind-speed-5-min-maximum", "kilometre-per-hour-to-metre-per-second"}
	gustDirProcedures     = []string{"netatmo-wind-dir-during-5-min-max-speed"}
)

// Project turns every sensor of latest into observations, in sensor order.
// Rain and wind sensors without a period yield nothing.
func Project(latest LatestDeviceState) []Observation {
	loc := ObservationLocation{
		ID: latest.Location.ID,
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{latest.Location.Lon, latest.Location.Lat},
		},
		ValidAt: FormatTime(latest.Location.ValidAt),
	}

	var out []Observation
	for _, s := range latest.Sensors {
		out = append(out, projectSensor(s, loc)...)
	}
	return out
}

func projectSensor(s LatestSensor, loc ObservationLocation) []Observation {
	base := Observation{
		MadeBySensor: SensorID(s.ModuleID, s.Type()),
		ResultTime:   FormatTime(s.Time),
		Location:     loc,
	}

	switch m := s.Measurement.(type) {
	case Temperature:
		return []Observation{base.with(PropertyAirTemperature, AggregationInstant, m.Celsius, UnitDegreeCelsius, temperatureProcedures)}
	case Humidity:
		return []Observation{base.with(PropertyRelativeHumidity, AggregationInstant, m.Percent, UnitPercent, humidityProcedures)}
	case Pressure:
		return []Observation{base.with(PropertyAirPressureAtMSL, AggregationInstant, m.Hectopascal, UnitHectopascal, pressureProcedures)}
	case Rain:
		if s.Period == nil {
			return nil
		}
		base.PhenomenonTime = phenomenonTime(*s.Period)
		var out []Observation
		if s.RainRate != nil {
			out = append(out, base.with(PropertyPrecipitationRate, AggregationAverage, *s.RainRate, UnitMillimetrePerHour, rainRateProcedures))
		}
		if s.RainAccumulation != nil {
			out = append(out, base.with(PropertyPrecipitationDepth, AggregationSum, *s.RainAccumulation, UnitMillimetre, rainDepthProcedures))
		}
		return out
	case Wind:
		if s.Period == nil {
			return nil
		}
		base.PhenomenonTime = phenomenonTime(*s.Period)
		var out []Observation
		if m.Strength != nil {
			out = append(out, base.with(PropertyWindSpeed, AggregationAverage,
				KilometrePerHourToMetresPerSecond(*m.Strength), UnitMetrePerSecond, windSpeedProcedures))
		}
		if m.Angle != nil {
			out = append(out, base.with(PropertyWindDirection, AggregationAverage, *m.Angle, UnitDegree, windDirProcedures))
		}
		if m.GustStrength != nil {
			out = append(out, base.with(PropertyWindSpeed, AggregationMaximum,
				KilometrePerHourToMetresPerSecond(*m.GustStrength), UnitMetrePerSecond, gustSpeedProcedures))
		}
		if m.GustAngle != nil {
			out = append(out, base.with(PropertyWindDirection, AggregationMaximum, *m.GustAngle, UnitDegree, gustDirProcedures))
		}
		return out
	}
	return nil
}

// with fills in the result fields on a copy of o. Slices and pointers are
// copied so observations never share backing storage.
func (o Observation) with(property string, agg Aggregation, value float64, unit string, procedures []string) Observation {
	o.ObservedProperty = property
	o.Aggregation = agg
	o.HasResult = Result{Value: value, Unit: unit}
	o.UsedProcedures = slices.Clone(procedures)
	o.Location.Geometry.Coordinates = slices.Clone(o.Location.Geometry.Coordinates)
	if o.PhenomenonTime != nil {
		pt := *o.PhenomenonTime
		o.PhenomenonTime = &pt
	}
	return o
}

func phenomenonTime(p Period) *PhenomenonTime {
	return &PhenomenonTime{HasBeginning: FormatTime(p.HasBeginning), HasEnd: FormatTime(p.HasEnd)}
}
