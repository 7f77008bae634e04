// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

package main

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/fieldsense/internal/config"
	"github.com/tomtom215/fieldsense/internal/decision"
)

func TestDecisionConfigKeepsDefaultsForZeroValues(t *testing.T) {
	got := decisionConfig(config.DecisionConfig{})
	want := decision.DefaultConfig()
	if got.HistoryLimit != want.HistoryLimit || got.Cooldown != want.Cooldown || got.Forest != want.Forest {
		t.Errorf("decisionConfig(zero) = %+v, want defaults %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDecisionConfigOverrides(t *testing.T) {
	got := decisionConfig(config.DecisionConfig{
		HistoryLimit: 50,
		Trees:        10,
		MaxDepth:     4,
		Seed:         7,
		Cooldown:     time.Hour,
		TestFraction: 0.3,
	})
	if got.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", got.HistoryLimit)
	}
	if got.Forest.Trees != 10 || got.Forest.MaxDepth != 4 || got.Forest.Seed != 7 {
		t.Errorf("Forest = %+v", got.Forest)
	}
	if got.Cooldown != time.Hour {
		t.Errorf("Cooldown = %v, want 1h", got.Cooldown)
	}
	if got.TestFraction != 0.3 {
		t.Errorf("TestFraction = %v, want 0.3", got.TestFraction)
	}
}

func TestMiddlewareConfig(t *testing.T) {
	mc := middlewareConfig(config.ServerConfig{
		CORSOrigins:   []string{"https://farm.example"},
		RateLimitReqs: 10,
	})
	if len(mc.CORSAllowedOrigins) != 1 || mc.CORSAllowedOrigins[0] != "https://farm.example" {
		t.Errorf("origins = %v", mc.CORSAllowedOrigins)
	}
	if mc.RateLimitRequests != 10 {
		t.Errorf("RateLimitRequests = %d, want 10", mc.RateLimitRequests)
	}
	if mc.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v, want default 1m", mc.RateLimitWindow)
	}
}

type recordingBroadcaster struct{ types []string }

func (r *recordingBroadcaster) BroadcastJSON(messageType string, _ interface{}) {
	r.types = append(r.types, messageType)
}

func TestAlertFanout(t *testing.T) {
	a, b := &recordingBroadcaster{}, &recordingBroadcaster{}
	alertFanout{a, b}.BroadcastJSON("alert", nil)
	if len(a.types) != 1 || len(b.types) != 1 {
		t.Errorf("fanout delivered %d and %d messages, want 1 each", len(a.types), len(b.types))
	}
}

type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestApplicationClosesInReverse(t *testing.T) {
	var order []string
	app := &application{}
	app.onClose("db", orderCloser{name: "db", order: &order})
	app.onClose("bus", orderCloser{name: "bus", order: &order, err: errors.New("already closed")})
	app.onClose("store", orderCloser{name: "store", order: &order})

	app.close()
	app.close()

	want := []string{"store", "bus", "db"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close order = %v, want %v", order, want)
			break
		}
	}
}
