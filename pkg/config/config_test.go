package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
environment: test
kafka:
  brokers: ["k1:9092"]
session:
  timezone: UTC
brief:
  symbols: [AAA, BBB]
  indexes: [IDX]
`

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", c.Server.Port)
	}
	if c.Brief.ReplayAmount != 450 || c.Brief.MaxWaitingLoops != 200 || c.Brief.PageSize != 3600 {
		t.Fatalf("unexpected brief defaults: %+v", c.Brief)
	}
	if c.Repair.MissingSpread != 0.997 || c.Repair.PriceMin != 0.03 {
		t.Fatalf("unexpected repair defaults: %+v", c.Repair)
	}
	if c.Session.Resolution != 6*time.Second || c.Kafka.TickTopic != "briefmaker.ticks" {
		t.Fatalf("unexpected defaults: %s %s", c.Session.Resolution, c.Kafka.TickTopic)
	}
	if !c.Brief.RangeWarnings || !c.Metrics.Enabled {
		t.Fatalf("expected boolean defaults to be on")
	}
	pre, begin, end := c.Clocks()
	if pre != 6*time.Hour+25*time.Minute+time.Second || begin != pre+5*time.Second || end != 13*time.Hour {
		t.Fatalf("unexpected clocks %s %s %s", pre, begin, end)
	}
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte(minimal + "metrics:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Metrics.Enabled {
		t.Fatalf("explicit false was overwritten by the default")
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no symbols":        strings.Replace(minimal, "symbols: [AAA, BBB]", "symbols: []", 1),
		"no brokers":        strings.Replace(minimal, `brokers: ["k1:9092"]`, "brokers: []", 1),
		"inverted hours":    strings.Replace(minimal, "timezone: UTC", "timezone: UTC\n  start_hour: 14\n  end_hour: 6", 1),
		"small header":      minimal + "  header_slots: 20\n",
		"bad clock":         strings.Replace(minimal, "timezone: UTC", "timezone: UTC\n  begin_record: '6:61'", 1),
		"record past close": strings.Replace(minimal, "timezone: UTC", "timezone: UTC\n  end_record: '14:30'", 1),
		"bad level":         minimal + "logger:\n  level: loud\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseBrokers(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"empty list", strings.Replace(minimal, `brokers: ["k1:9092"]`, "brokers: []", 1), false},
		{"missing key", strings.Replace(minimal, `  brokers: ["k1:9092"]`+"\n", "", 1), false},
		{"blank entry", strings.Replace(minimal, `brokers: ["k1:9092"]`, `brokers: ["k1:9092", ""]`, 1), false},
		{"disabled without brokers", strings.Replace(minimal, `brokers: ["k1:9092"]`, "enabled: false\n  brokers: []", 1), true},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.doc))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:2" {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "redis:6380" {
		t.Fatalf("redis override not applied: %+v", c.Redis)
	}
	if c.Logger.Level != "debug" {
		t.Fatalf("expected debug level, got %s", c.Logger.Level)
	}
}
