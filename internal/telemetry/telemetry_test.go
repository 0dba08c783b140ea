package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/world"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("debug", "json", &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	cl := Component(l, "bleach")
	cl.Debug().Int("fired", 2).Msg("tick")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if m["component"] != "bleach" || m["message"] != "tick" || m["level"] != "debug" {
		t.Fatalf("unexpected line: %v", m)
	}
}

func TestNewLogger_RejectsUnknown(t *testing.T) {
	if _, err := NewLogger("loud", "json", io.Discard); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger("info", "xml", io.Discard); err == nil {
		t.Fatalf("expected format error")
	}
}

type fakeWorld struct{ m world.WorldMetrics }

func (f fakeWorld) ID() string                   { return "overworld" }
func (f fakeWorld) Metrics() world.WorldMetrics { return f.m }

func TestMetrics_ExposesWorldSnapshot(t *testing.T) {
	m := NewMetrics(fakeWorld{m: world.WorldMetrics{
		Tick:  42,
		Items: 3,
		Bleach: bleach.Stats{
			Pending:        1,
			Transformed:    5,
			ItemsConverted: 40,
		},
	}})
	m.Counter("index_dropped_total", "Rows dropped by the index queue.", func() float64 { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`dyewash_world_tick{world="overworld"} 42`,
		`dyewash_world_items{world="overworld"} 3`,
		`dyewash_world_pending{world="overworld"} 1`,
		`dyewash_bleach_transformed_total{world="overworld"} 5`,
		`dyewash_bleach_items_converted_total{world="overworld"} 40`,
		`dyewash_index_dropped_total 7`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
