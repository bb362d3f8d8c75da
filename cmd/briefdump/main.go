// Command briefdump exports stored briefs as CSV, one row per symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"BriefMaker/internal/domain/models"
	internalrepo "BriefMaker/internal/repository"
	pkgch "BriefMaker/pkg/clickhouse"
	"BriefMaker/pkg/config"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/tinytime"
	"BriefMaker/pkg/util"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	from := flag.String("from", "", "first window, RFC3339 or unix seconds")
	to := flag.String("to", "", "last window, RFC3339 or unix seconds (default now)")
	symbol := flag.String("symbol", "", "only this symbol")
	limit := flag.Int("limit", 5000, "max briefs")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}
	epoch, err := time.Parse(time.DateOnly, cfg.Session.Epoch)
	if err != nil {
		log.Fatalf("epoch: %v", err)
	}
	codec, err := tinytime.New(
		tinytime.WithEpoch(epoch),
		tinytime.WithSession(time.Duration(cfg.Session.StartHour)*time.Hour, time.Duration(cfg.Session.EndHour)*time.Hour),
		tinytime.WithResolution(cfg.Session.Resolution),
		tinytime.WithLocation(loc),
	)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	fromID, toID, err := idRange(codec, *from, *to, time.Now())
	if err != nil {
		log.Fatalf("range: %v", err)
	}

	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
	)
	if err != nil {
		log.Fatalf("clickhouse: %v", err)
	}
	defer client.Close()

	storage := internalrepo.NewClickHouseBriefStorage(client.DB(), ch.Database+"."+ch.BriefTable, xlogger.Nop())
	briefs, err := storage.QueryRange(context.Background(), fromID, toID, *limit)
	if err != nil {
		log.Fatalf("query briefs: %v", err)
	}

	layout := models.Layout{Symbols: len(cfg.Brief.Symbols), Indexes: len(cfg.Brief.Indexes), HeaderSlots: cfg.Brief.HeaderSlots}
	at := func(id uint32) time.Time { return codec.Decode(tinytime.TinyTime(id)) }
	rows, err := Rows(layout, cfg.Brief.Symbols, briefs, at, *symbol)
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	if err := WriteCSV(os.Stdout, rows); err != nil {
		log.Fatalf("write csv: %v", err)
	}
}

// idRange maps the flag times onto window ids. An empty to means now and an
// empty from starts a day before to.
func idRange(codec *tinytime.Codec, from, to string, now time.Time) (uint32, uint32, error) {
	end, err := flagTime(to, now)
	if err != nil {
		return 0, 0, err
	}
	start, err := flagTime(from, end.Add(-24*time.Hour))
	if err != nil {
		return 0, 0, err
	}
	toID, err := codec.Floor(end)
	if err != nil {
		return 0, 0, err
	}
	fromID, err := codec.Floor(start)
	if err != nil {
		return 0, 0, err
	}
	return uint32(fromID), uint32(toID), nil
}

// flagTime accepts RFC3339 or unix seconds.
func flagTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("time %q: want RFC3339 or unix seconds", s)
	}
	return t, nil
}
