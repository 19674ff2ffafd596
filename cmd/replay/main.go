// Command replay runs a saved getpublicdata response through the ingest
// pipeline offline: normalize, merge against a state file, project, and
// print the observations that would be published as JSON lines.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -input testdata/publicdata.json \
//	  -state state.json \
//	  -state-out state.json \
//	  -now 2020-02-12T11:10:20Z
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/netatmo-ingest/internal/adapter/memory"
	"github.com/couchcryptid/netatmo-ingest/internal/domain"
	"github.com/couchcryptid/netatmo-ingest/internal/observability"
	"github.com/couchcryptid/netatmo-ingest/internal/pipeline"
)

// world covers every station in the input.
var world = domain.Window{North: 90, South: -90, East: 180, West: -180}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "getpublicdata response, either the full envelope or its body array")
	stateIn := fs.String("state", "", "latest-state file to merge against (optional)")
	stateOut := fs.String("state-out", "", "where to write the resulting latest state (optional)")
	topic := fs.String("topic", "observation.incoming", "topic recorded on each printed observation")
	now := fs.String("now", "", "RFC 3339 time used for new location ids' validAt (default: current time)")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		fs.Usage()
		return errors.New("missing required flag: -input")
	}

	clock := clockwork.NewRealClock()
	if *now != "" {
		at, err := time.Parse(time.RFC3339Nano, *now)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		clock = clockwork.NewFakeClockAt(at)
		domain.SetClock(clock)
		defer domain.SetClock(nil)
	}

	devices, err := readPublicData(*input)
	if err != nil {
		return err
	}

	store := memory.NewStore(clock)
	if *stateIn != "" {
		states, err := readState(*stateIn)
		if err != nil {
			return err
		}
		if err := store.Restore(states); err != nil {
			return err
		}
	}

	// Logs go to stderr; stdout carries the observation lines.
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("parse -log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	pub := &linePublisher{enc: json.NewEncoder(stdout)}
	in := pipeline.NewIngester(staticSource(devices), store, pub, singleWindow{},
		pipeline.Options{Region: world, Topic: *topic, Clock: clock}, logger, observability.NewMetricsForTesting())

	summary, err := in.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "cycle=%s devices=%d device_errors=%d observations=%d\n",
		summary.StartedAt.Format(time.RFC3339), summary.Devices, summary.DeviceErrors, summary.Observations)

	if *stateOut != "" {
		if err := writeJSON(*stateOut, store.Snapshot()); err != nil {
			return fmt.Errorf("write state: %w", err)
		}
	}
	return nil
}

// staticSource serves the same stations for any window.
type staticSource []domain.RawDevice

func (s staticSource) AccessToken(context.Context) (string, error) { return "replay", nil }

func (s staticSource) PublicData(context.Context, string, domain.Window) ([]domain.RawDevice, error) {
	return s, nil
}

type singleWindow struct{}

func (singleWindow) Windows(region domain.Region) []domain.Window { return []domain.Window{region} }

type linePublisher struct {
	enc *json.Encoder
}

func (p *linePublisher) Publish(_ context.Context, topic string, obs domain.Observation) error {
	return p.enc.Encode(struct {
		Topic       string             `json:"topic"`
		Observation domain.Observation `json:"observation"`
	}{topic, obs})
}

func readPublicData(path string) ([]domain.RawDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)

	var devices []domain.RawDevice
	if len(data) > 0 && data[0] == '{' {
		var envelope struct {
			Body []domain.RawDevice `json:"body"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
		return envelope.Body, nil
	}
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return devices, nil
}

func readState(path string) ([]domain.LatestDeviceState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var states []domain.LatestDeviceState
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return states, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
