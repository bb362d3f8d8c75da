package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestBuildOptions(t *testing.T) {
	cfg := ClientConfig{}
	for _, opt := range []ClientOption{
		WithHost("ch"),
		WithPort(9440),
		WithDatabase("briefmaker"),
		WithCredentials("u", "p"),
		WithHTTP(true),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
	} {
		opt(&cfg)
	}
	o := buildOptions(cfg)
	if o.Protocol != clickhouse.HTTP {
		t.Fatalf("expected http protocol")
	}
	if len(o.Addr) != 1 || o.Addr[0] != "ch:9440" {
		t.Fatalf("unexpected addr %v", o.Addr)
	}
	if o.Auth.Database != "briefmaker" || o.Auth.Username != "u" || o.Auth.Password != "p" {
		t.Fatalf("unexpected auth %+v", o.Auth)
	}
	if o.Settings["max_execution_time"] != 90 || o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("unexpected settings %v", o.Settings)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(WithPort(9000)); err == nil {
		t.Fatalf("expected error without host")
	}
}
