package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawDevice is one element of the getpublicdata response body, as sent by
// Netatmo.
type RawDevice struct {
	ID          string            `json:"_id"`
	Place       RawPlace          `json:"place"`
	Mark        int               `json:"mark,omitempty"`
	Measures    RawMeasures       `json:"measures"`
	Modules     []string          `json:"modules,omitempty"`
	ModuleTypes map[string]string `json:"module_types,omitempty"`
}

type RawPlace struct {
	Location []float64 `json:"location"`
	Timezone *string   `json:"timezone,omitempty"`
	Country  *string   `json:"country,omitempty"`
	Altitude *float64  `json:"altitude,omitempty"`
	City     *string   `json:"city,omitempty"`
	Street   *string   `json:"street,omitempty"`
}

// RawModule is one entry of a device's measures object. Which fields are
// set depends on the kind of module.
type RawModule struct {
	ModuleID string `json:"-"`

	Res  RawBuckets `json:"res,omitempty"`
	Type []string   `json:"type,omitempty"`

	Rain60Min   *float64 `json:"rain_60min,omitempty"`
	Rain24h     *float64 `json:"rain_24h,omitempty"`
	RainLive    *float64 `json:"rain_live,omitempty"`
	RainTimeUTC *int64   `json:"rain_timeutc,omitempty"`

	WindStrength *float64 `json:"wind_strength,omitempty"`
	WindAngle    *float64 `json:"wind_angle,omitempty"`
	GustStrength *float64 `json:"gust_strength,omitempty"`
	GustAngle    *float64 `json:"gust_angle,omitempty"`
	WindTimeUTC  *int64   `json:"wind_timeutc,omitempty"`
}

// RawMeasures decodes the measures object into a slice so that module order
// matches the order Netatmo sent them in.
type RawMeasures []RawModule

func (m *RawMeasures) UnmarshalJSON(data []byte) error {
	var out RawMeasures
	err := decodeObject(data, func(key string, value json.RawMessage) error {
		var mod RawModule
		if err := json.Unmarshal(value, &mod); err != nil {
			return fmt.Errorf("decode module %s: %w", key, err)
		}
		mod.ModuleID = key
		out = append(out, mod)
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func (m RawMeasures) MarshalJSON() ([]byte, error) {
	return encodeObject(len(m), func(i int) (string, any) { return m[i].ModuleID, m[i] })
}

// RawBucket is one timestamp-keyed entry of a module's res object.
type RawBucket struct {
	Timestamp string
	Values    []*float64
}

type RawBuckets []RawBucket

func (b *RawBuckets) UnmarshalJSON(data []byte) error {
	var out RawBuckets
	err := decodeObject(data, func(key string, value json.RawMessage) error {
		var values []*float64
		if err := json.Unmarshal(value, &values); err != nil {
			return fmt.Errorf("decode res bucket %s: %w", key, err)
		}
		out = append(out, RawBucket{Timestamp: key, Values: values})
		return nil
	})
	if err != nil {
		return err
	}
	*b = out
	return nil
}

func (b RawBuckets) MarshalJSON() ([]byte, error) {
	return encodeObject(len(b), func(i int) (string, any) { return b[i].Timestamp, b[i].Values })
}

// decodeObject walks a JSON object in document order. A null value yields
// no calls.
func decodeObject(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read object start: %w", err)
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read object key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("read value of %s: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read object end: %w", err)
	}
	return nil
}

func encodeObject(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range n {
		key, value := entry(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
