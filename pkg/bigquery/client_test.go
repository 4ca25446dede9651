package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
)

func TestConfiguredTablesTrimsAndSkipsBlank(t *testing.T) {
	tables := configuredTables(config.BigQueryConfig{Dataset: "partyshop", OrderEventsTable: " order_events "})
	if len(tables) != 1 || tables[0] != "order_events" {
		t.Fatalf("unexpected tables %v", tables)
	}
	if got := configuredTables(config.BigQueryConfig{OrderEventsTable: "   "}); len(got) != 0 {
		t.Fatalf("expected no tables, got %v", got)
	}
}

func TestNewClientRejectsIncompleteConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{OrderEventsTable: "t"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestDescribeLookup(t *testing.T) {
	if err := describeLookup("table", "order_events", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	missing := describeLookup("dataset", "partyshop", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound}))
	if missing == nil || !strings.Contains(missing.Error(), "does not exist") {
		t.Fatalf("expected not-found message, got %v", missing)
	}
	forbidden := &googleapi.Error{Code: http.StatusForbidden}
	if err := describeLookup("table", "order_events", forbidden); !errors.As(err, new(*googleapi.Error)) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if isNotFound(errors.New("plain")) {
		t.Fatal("plain errors are not googleapi errors")
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected nil client ping to fail")
	}
	if err := c.InsertRows(context.Background(), "order_events", []any{1}); err == nil {
		t.Fatal("expected nil client insert to fail")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close should be a no-op, got %v", err)
	}
}

func TestCredentialOptions(t *testing.T) {
	cases := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{"json wins over file", config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}, 1},
		{"file only", config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, 1},
		{"default credentials", config.GCPConfig{}, 0},
	}
	for _, tc := range cases {
		if got := len(credentialOptions(tc.gcp)); got != tc.want {
			t.Fatalf("%s: expected %d options, got %d", tc.name, tc.want, got)
		}
	}
}
