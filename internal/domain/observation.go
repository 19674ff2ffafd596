package domain

// Aggregation describes how a result summarises the underlying samples.
type Aggregation string

const (
	AggregationInstant Aggregation = "instant"
	AggregationAverage Aggregation = "average"
	AggregationMaximum Aggregation = "maximum"
	AggregationSum     Aggregation = "sum"
)

// Observed properties.
const (
	PropertyAirTemperature     = "air-temperature"
	PropertyRelativeHumidity   = "relative-humidity"
	PropertyAirPressureAtMSL   = "air-pressure-at-mean-sea-level"
	PropertyPrecipitationRate  = "precipitation-rate"
	PropertyPrecipitationDepth = "precipitation-depth"
	PropertyWindSpeed          = "wind-speed"
	PropertyWindDirection      = "wind-direction"
)

// Units.
const (
	UnitDegreeCelsius     = "degree-celsius"
	UnitPercent           = "percent"
	UnitHectopascal       = "hectopascal"
	UnitMillimetrePerHour = "millimetre-per-hour"
	UnitMillimetre        = "millimetre"
	UnitMetrePerSecond    = "metre-per-second"
	UnitDegree            = "degree"
)

// Observation is the standardized message published for every new sensor
// value. Times are ISO-8601 UTC strings with millisecond precision.
type Observation struct {
	MadeBySensor     string              `json:"madeBySensor"`
	ResultTime       string              `json:"resultTime"`
	Location         ObservationLocation `json:"location"`
	ObservedProperty string              `json:"observedProperty"`
	Aggregation      Aggregation         `json:"aggregation"`
	UsedProcedures   []string            `json:"usedProcedures"`
	HasResult        Result              `json:"hasResult"`
	PhenomenonTime   *PhenomenonTime     `json:"phenomenonTime,omitempty"`
}

type ObservationLocation struct {
	ID       string   `json:"id"`
	Geometry Geometry `json:"geometry"`
	ValidAt  string   `json:"validAt"`
}

// Geometry is a GeoJSON point; Coordinates is [lon, lat].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type Result struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type PhenomenonTime struct {
	HasBeginning string `json:"hasBeginning"`
	HasEnd       string `json:"hasEnd"`
}
