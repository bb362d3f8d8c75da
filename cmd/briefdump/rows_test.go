package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"BriefMaker/internal/domain/models"
	"BriefMaker/pkg/tinytime"
)

func TestRowsAndCSV(t *testing.T) {
	layout := models.Layout{Symbols: 2, Indexes: models.DefaultIndexCount, HeaderSlots: models.DefaultHeaderSlots}
	syms := []models.SymbolAttributes{models.NewSymbolAttributes(), models.NewSymbolAttributes()}
	syms[0].Last, syms[0].SaleCount = 101.5, 3
	syms[1].Last = 42

	raw, err := models.EncodeBrief(layout, models.Header{}, syms)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	base := time.Date(2024, 3, 4, 6, 30, 0, 0, time.UTC)
	at := func(id uint32) time.Time { return base }

	rows, err := Rows(layout, []string{"AAA", "BBB"}, []models.Brief{{ID: 7, Bytes: raw}}, at, "")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0].Symbol != "AAA" || rows[1].Symbol != "BBB" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Last != 101.5 || rows[0].SaleCount != 3 || rows[0].ID != 7 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}

	only, err := Rows(layout, []string{"AAA", "BBB"}, []models.Brief{{ID: 7, Bytes: raw}}, at, "BBB")
	if err != nil || len(only) != 1 || only[0].Last != 42 {
		t.Fatalf("symbol filter: %+v, %v", only, err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header and 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,time,symbol,last,") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "7,2024-03-04T06:30:00Z,AAA,101.5,") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestRowsRejectsShortBrief(t *testing.T) {
	layout := models.Layout{Symbols: 2, Indexes: models.DefaultIndexCount, HeaderSlots: models.DefaultHeaderSlots}
	if _, err := Rows(layout, nil, []models.Brief{{ID: 1, Bytes: []byte{1, 2, 3}}}, func(uint32) time.Time { return time.Time{} }, ""); err == nil {
		t.Fatal("expected a size error")
	}
}

func TestIDRange(t *testing.T) {
	codec, err := tinytime.New()
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	from, to, err := idRange(codec, "2024-03-04T06:00:00Z", "2024-03-04T06:01:00Z", time.Time{})
	if err != nil {
		t.Fatalf("idRange: %v", err)
	}
	if to-from != 10 {
		t.Fatalf("want 10 windows apart, got %d..%d", from, to)
	}
	if _, _, err := idRange(codec, "yesterday", "", time.Now()); err == nil {
		t.Fatal("expected a parse error")
	}
}
