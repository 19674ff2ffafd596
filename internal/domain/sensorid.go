package domain

import "strings"

// SensorID is the identifier observations are attributed to.
func SensorID(moduleID string, t SensorType) string {
	return "netatmo-" + strings.ReplaceAll(moduleID, ":", "-") + "-" + string(t)
}
