// Package domain models Netatmo public weather-station data and its
// projection into standardized observations.
//
// # Data Source
//
// Readings come from the Netatmo getpublicdata endpoint, queried one
// latitude/longitude window at a time. The response body is an array of
// devices; each device carries its place and a "measures" object keyed by
// module id.
//
// # Netatmo Data Conventions
//
// Location format:
//
//	place.location is [lon, lat], longitude first. Both are rounded to
//	7 decimal places on the way in so that a station that has not moved
//	compares equal between cycles.
//
// Module payload shapes:
//
//	Thermometer, hygrometer and barometer modules report through "res", an
//	object holding a single bucket keyed by a seconds-since-epoch string:
//
//	  "res":  {"1581094840": [6.7, 81]}
//	  "type": ["temperature", "humidity"]
//
//	The value for each type sits at that type's index in "type".
//
//	Anemometers report flat fields instead:
//
//	  wind_strength, wind_angle, gust_strength, gust_angle, wind_timeutc
//
//	Rain gauges likewise:
//
//	  rain_60min, rain_24h, rain_live, rain_timeutc
//
//	rain_24h is a running total that rolls over to zero once a day.
//
// Units:
//
//	Temperature in degrees Celsius, humidity in percent, pressure in hPa
//	adjusted to sea level, wind in km/h and degrees, rain in millimetres.
//	Wind values are five-minute averages and maxima.
//
// # Derived Values
//
// Rain depth and rate are derived from two consecutive rain_24h totals no
// more than 30 minutes apart. Wind readings are stamped with the
// five-minute window ending at the reading time. See [Merge].
//
// # Sensor Identity
//
// Observations are attributed to "netatmo-<module id>-<type>", with the
// colons of the MAC-style module id replaced by dashes. See [SensorID].
package domain
