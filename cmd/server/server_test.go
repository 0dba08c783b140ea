package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/world"
	"dyewash.ai/internal/telemetry"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	p, err := catalogs.LookupProfile(catalogs.DefaultProfileTag)
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	cat, err := p.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "srv_test", TickRateHz: 50, Profile: p, ChargeThreshold: 1, ChargeCost: 1}, cat, zerolog.Nop())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func TestMux_HealthAndMetrics(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce(nil)
	mux := newMux(httpDeps{world: w, metrics: telemetry.NewMetrics(w)})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dyewash_world_tick{world="srv_test"} 1`) {
		t.Fatalf("metrics body:\n%s", rec.Body.String())
	}
}

func TestMux_AdminStateLoopbackOnly(t *testing.T) {
	w := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	mux := newMux(httpDeps{world: w, admin: true})

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback admin: %d %s", rec.Code, rec.Body.String())
	}
	var st world.StateView
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorldID != "srv_test" || st.Profile != catalogs.DefaultProfileTag {
		t.Fatalf("state: %+v", st)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v", addr, got)
		}
	}
}

func TestValidateCommand_RepoTuning(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--configs", "../../configs"})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "profile v1_17") || !strings.Contains(out.String(), "wool") {
		t.Fatalf("output:\n%s", out.String())
	}
}
