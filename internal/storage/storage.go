// Package storage persists metric rows in an append-only tabular store.
package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
)

// Column positions of a persisted row.
const (
	ColVideoID = iota
	ColChannelTitle
	ColPublishedAt
	ColTimestamp
	ColViewCount
	ColLikeCount
	ColCommentCount
	ColVPH
	ColEngagementRate

	NumColumns
)

// Header is the fixed column schema, in order.
var Header = []string{
	"video_id",
	"channel_title",
	"published_at",
	"timestamp",
	"viewCount",
	"likeCount",
	"commentCount",
	"vph",
	"engagement_rate",
}

// Row is one persisted record, one string per column.
type Row []string

// Snapshot is the full content of a store: the header (nil when absent) and
// the data rows in insertion order.
type Snapshot struct {
	Header []string `json:"header"`
	Rows   []Row    `json:"rows"`
}

// HasSchema reports whether the header is present and wide enough.
func (s *Snapshot) HasSchema() bool {
	return s != nil && len(s.Header) >= NumColumns
}

// Store is the tracked-set store. Implementations must preserve insertion
// order, and AppendRows must write all rows in a single request.
type Store interface {
	ReadAll(ctx context.Context) (*Snapshot, error)
	InitializeSchema(ctx context.Context, header []string) error
	AppendRows(ctx context.Context, rows []Row) error
	Close() error
}

// Backend names.
const (
	BackendSheets   = "sheets"
	BackendBigQuery = "bigquery"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
)

// SheetsOptions configures the Google Sheets backend.
type SheetsOptions struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	ClientOptions   []option.ClientOption
}

// BigQueryOptions configures the BigQuery backend.
type BigQueryOptions struct {
	ProjectID string
	DatasetID string
	TableID   string
	Location  string
}

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Sheets     SheetsOptions
	BigQuery   BigQueryOptions
	BoltPath   string
	SQLitePath string
}

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(opts.Backend)) {
	case "", BackendSheets:
		if strings.TrimSpace(opts.Sheets.SpreadsheetID) == "" {
			return nil, fmt.Errorf("sheets storage requires a spreadsheet id")
		}
		return NewSheetsStore(ctx, opts.Sheets)
	case BackendBigQuery:
		if strings.TrimSpace(opts.BigQuery.ProjectID) == "" {
			return nil, fmt.Errorf("bigquery storage requires a project id")
		}
		return NewBigQueryStore(ctx, opts.BigQuery)
	case BackendBolt:
		if strings.TrimSpace(opts.BoltPath) == "" {
			return nil, fmt.Errorf("bolt storage requires a path")
		}
		return openBolt(opts.BoltPath)
	case BackendSQLite:
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", opts.Backend)
	}
}

// cellString renders a value read back from a backend as the exact string that was written.
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
