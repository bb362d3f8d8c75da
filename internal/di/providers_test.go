package di

import (
	"testing"

	"BriefMaker/internal/usecase"
	"BriefMaker/pkg/config"
)

func parseConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
environment: test
kafka:
  brokers: ["k1:9092"]
session:
  timezone: UTC
brief:
  symbols: [AAA]
  indexes: [IDX]
` + extra))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestRepairConfigDefaultsMatch(t *testing.T) {
	got := ProvideRepairConfig(parseConfig(t, ""))
	if want := usecase.DefaultRepairConfig(); got != want {
		t.Fatalf("file defaults drifted from built-in repair config:\n got %+v\nwant %+v", got, want)
	}
}

func TestRepairConfigOverrides(t *testing.T) {
	got := ProvideRepairConfig(parseConfig(t, `
repair:
  price_max: 1500
  half_gap: 0
`))
	if got.PriceMax != 1500 {
		t.Fatalf("expected price_max override, got %v", got.PriceMax)
	}
	if want := usecase.DefaultRepairConfig().HalfGap; got.HalfGap != want {
		t.Fatalf("zero half_gap should keep %v, got %v", want, got.HalfGap)
	}
}
