package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is a dataset-scoped BigQuery handle. Only tables declared at
// construction are accepted by InsertRows.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	tables  map[string]*bigquery.Table
}

// NewClient connects to the analytics dataset and refuses to start if the
// dataset or the order events table is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	names := configuredTables(cfg)
	if len(names) == 0 {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	c := &Client{client: bq, dataset: bq.Dataset(datasetID), tables: make(map[string]*bigquery.Table, len(names))}
	for _, name := range names {
		c.tables[name] = c.dataset.Table(name)
	}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": projectID,
			"dataset": datasetID,
			"tables":  names,
		}), "bigquery client initialized")
	}
	return c, nil
}

// credentialOptions prefers inline JSON over a credentials file. With neither
// set the SDK falls back to application default credentials.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func configuredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	if name := strings.TrimSpace(cfg.OrderEventsTable); name != "" {
		tables = append(tables, name)
	}
	return tables
}

// Ping checks that the dataset and every declared table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	if err := describeLookup("dataset", c.dataset.DatasetID, err); err != nil {
		return err
	}
	for name, table := range c.tables {
		_, err := table.Metadata(ctx)
		if err := describeLookup("table", name, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// InsertRows streams rows into one of the declared tables.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}
	target, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("table %q is not configured for this client", name)
	}
	if len(rows) == 0 {
		return nil
	}
	return target.Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
