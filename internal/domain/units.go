package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// KilometrePerHourToMetresPerSecond converts km/h to m/s, rounded to one
// decimal place.
func KilometrePerHourToMetresPerSecond(kmh float64) float64 {
	return round(kmh/3.6, 1)
}

// CalculateRainRate returns the average rate in mm/h for depth millimetres
// falling between from and to, rounded to two decimal places.
func CalculateRainRate(from, to time.Time, depth float64) (float64, error) {
	if !to.After(from) {
		return 0, NewError(KindRainRate, "", fmt.Errorf("interval end %s is not after start %s",
			FormatTime(to), FormatTime(from)))
	}
	if depth == 0 {
		return 0, nil
	}
	return round(depth/to.Sub(from).Hours(), 2), nil
}

// round rounds x to the given number of decimal places, halves away from
// zero. The shift goes through the shortest decimal representation of x so
// that values such as 1.005 round to 1.01 rather than 1.00.
func round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return shiftDecimal(math.Round(shiftDecimal(x, places)), -places)
}

func shiftDecimal(x float64, places int) float64 {
	s := strconv.FormatFloat(x, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	e, err := strconv.Atoi(exp)
	if err != nil {
		return x * math.Pow10(places)
	}
	v, err := strconv.ParseFloat(mantissa+"e"+strconv.Itoa(e+places), 64)
	if err != nil {
		return x * math.Pow10(places)
	}
	return v
}

// FormatTime renders t as an ISO-8601 UTC timestamp with millisecond
// precision, e.g. 2020-02-12T11:07:24.818Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
