package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/partyshop-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/partyshop-backend/pkg/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config sizes batches and bounds insert retries. Zero values take defaults.
type Config struct {
	OrderEventsTable string
	BatchSize        int
	MaxRetries       uint64
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	c.MaxBackoff = max(c.MaxBackoff, c.BaseBackoff)
	return c
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers order event rows and streams them in batches.
// A failed flush keeps the buffer so the rows ride along with the next one.
type BigQueryWriter struct {
	client tableInserter
	cfg    Config

	mu      sync.Mutex
	pending []types.OrderEventRow
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWriter(client, cfg)
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	cfg.OrderEventsTable = strings.TrimSpace(cfg.OrderEventsTable)
	if cfg.OrderEventsTable == "" {
		return nil, errors.New("order events table is required")
	}
	return &BigQueryWriter{client: client, cfg: cfg.withDefaults()}, nil
}

func (w *BigQueryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.cfg.BatchSize {
		return nil
	}
	return w.flush(ctx)
}

// Flush writes whatever is buffered regardless of batch size.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *BigQueryWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &w.pending[i])
	}

	backoff := retry.WithMaxRetries(w.cfg.MaxRetries,
		retry.WithCappedDuration(w.cfg.MaxBackoff, retry.NewExponential(w.cfg.BaseBackoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.cfg.OrderEventsTable, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.cfg.OrderEventsTable, err)
	}
	w.pending = w.pending[:0]
	return nil
}

// transient reports whether every failure inside err is worth retrying.
// Row-level errors from a streaming insert only qualify when all of them do.
func transient(err error) bool {
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, row := range rows {
			if !allTransient(row.Errors) {
				return false
			}
		}
		return true
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !transient(err) {
			return false
		}
	}
	return true
}

// EncodeJSON converts a payload into a BigQuery JSON column value. Nil and
// empty input map to NULL; raw JSON bytes pass through unchanged.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
