package storage

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lancelop89/shorts-tracker/internal/window"
)

const (
	DefaultDatasetID = "youtube"
	DefaultTableID   = "shorts_metrics"
)

// BigQueryStore keeps rows in a BigQuery table whose first columns mirror Header.
type BigQueryStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	location  string
	now       func() time.Time
}

// sampleRecord is one metric row plus the bookkeeping columns that preserve insertion order.
type sampleRecord struct {
	Row          Row
	AppendedAt   time.Time
	RowIndex     int64
	SnapshotDate civil.Date
}

// Save implements bigquery.ValueSaver. The insert id mirrors the
// (video_id, timestamp) dedup key so retried streaming inserts collapse.
func (r *sampleRecord) Save() (map[string]bigquery.Value, string, error) {
	if len(r.Row) < NumColumns {
		return nil, "", fmt.Errorf("row has %d columns, want %d", len(r.Row), NumColumns)
	}
	values := make(map[string]bigquery.Value, NumColumns+3)
	for i, name := range Header {
		values[name] = r.Row[i]
	}
	values["appended_at"] = r.AppendedAt
	values["row_index"] = r.RowIndex
	values["snapshot_date"] = r.SnapshotDate
	return values, insertID(r.Row), nil
}

func insertID(row Row) string {
	return fmt.Sprintf("%s-%s", row[ColVideoID], row[ColTimestamp])
}

// bookkeepingColumns are appended after the header columns.
var bookkeepingColumns = map[string]bool{
	"appended_at":   true,
	"row_index":     true,
	"snapshot_date": true,
}

func getBookkeepingSchemaJSON() []byte {
	return []byte(`[
	  {"name": "appended_at",   "type": "TIMESTAMP", "mode": "REQUIRED"},
	  {"name": "row_index",     "type": "INTEGER",   "mode": "REQUIRED"},
	  {"name": "snapshot_date", "type": "DATE",      "mode": "REQUIRED"}
	]`)
}

// tableSchema stores every header column as a STRING so values read back byte-exact.
func tableSchema(header []string) (bigquery.Schema, error) {
	schema := make(bigquery.Schema, 0, len(header)+len(bookkeepingColumns))
	for _, name := range header {
		schema = append(schema, &bigquery.FieldSchema{
			Name:     name,
			Type:     bigquery.StringFieldType,
			Required: true,
		})
	}
	extra, err := bigquery.SchemaFromJSON(getBookkeepingSchemaJSON())
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return append(schema, extra...), nil
}

// NewBigQueryStore creates a new BigQuery-backed store.
func NewBigQueryStore(ctx context.Context, opts BigQueryOptions) (*BigQueryStore, error) {
	var clientOpts []option.ClientOption
	if host := os.Getenv("BIGQUERY_EMULATOR_HOST"); host != "" {
		// The emulator speaks plain HTTP and needs no credentials.
		clientOpts = append(clientOpts, option.WithEndpoint("http://"+host))
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	client, err := bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}

	s := &BigQueryStore{
		client:    client,
		projectID: opts.ProjectID,
		datasetID: opts.DatasetID,
		tableID:   opts.TableID,
		location:  opts.Location,
		now:       time.Now,
	}
	if s.datasetID == "" {
		s.datasetID = DefaultDatasetID
	}
	if s.tableID == "" {
		s.tableID = DefaultTableID
	}
	return s, nil
}

func isNotFound(err error) bool {
	var e *googleapi.Error
	return goerrors.As(err, &e) && e.Code == http.StatusNotFound
}

// ReadAll returns the table columns as the header and every row ordered by insertion.
// A missing table yields an empty snapshot without a header.
func (s *BigQueryStore) ReadAll(ctx context.Context) (*Snapshot, error) {
	table := s.client.Dataset(s.datasetID).Table(s.tableID)
	meta, err := table.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to get table metadata: %w", err)
	}

	snapshot := &Snapshot{}
	for _, field := range meta.Schema {
		if !bookkeepingColumns[field.Name] {
			snapshot.Header = append(snapshot.Header, field.Name)
		}
	}
	if len(snapshot.Header) == 0 {
		return snapshot, nil
	}

	quoted := make([]string, len(snapshot.Header))
	for i, name := range snapshot.Header {
		quoted[i] = "`" + name + "`"
	}
	q := s.client.Query(fmt.Sprintf(
		"SELECT %s FROM `%s.%s.%s` ORDER BY appended_at, row_index",
		strings.Join(quoted, ", "), s.projectID, s.datasetID, s.tableID,
	))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		row := make(Row, len(values))
		for i, v := range values {
			row[i] = cellString(v)
		}
		snapshot.Rows = append(snapshot.Rows, row)
	}
	return snapshot, nil
}

// InitializeSchema creates the dataset and table if they don't exist. An
// existing table whose leading columns differ from header is an error.
func (s *BigQueryStore) InitializeSchema(ctx context.Context, header []string) error {
	dataset := s.client.Dataset(s.datasetID)
	if _, err := dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("failed to get dataset metadata: %w", err)
		}
		if err := dataset.Create(ctx, &bigquery.DatasetMetadata{Location: s.location}); err != nil {
			return fmt.Errorf("failed to create dataset: %w", err)
		}
	}

	table := dataset.Table(s.tableID)
	meta, err := table.Metadata(ctx)
	if err == nil {
		return checkSchema(meta.Schema, header)
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to get table metadata: %w", err)
	}

	schema, err := tableSchema(header)
	if err != nil {
		return err
	}
	tableMetadata := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Field:      "snapshot_date",
			Type:       bigquery.DayPartitioningType,
			Expiration: 0, // No expiration
		},
		Clustering: &bigquery.Clustering{
			Fields: []string{Header[ColVideoID]},
		},
	}
	if err := table.Create(ctx, tableMetadata); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func checkSchema(schema bigquery.Schema, header []string) error {
	if len(schema) < len(header) {
		return fmt.Errorf("table has %d columns, want at least %d", len(schema), len(header))
	}
	for i, name := range header {
		if schema[i].Name != name {
			return fmt.Errorf("table column %d is %q, want %q", i, schema[i].Name, name)
		}
	}
	return nil
}

// AppendRows streams all rows in one insert request.
func (s *BigQueryStore) AppendRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	records := buildRecords(rows, s.now())
	inserter := s.client.Dataset(s.datasetID).Table(s.tableID).Inserter()
	if err := inserter.Put(ctx, records); err != nil {
		return fmt.Errorf("failed to insert records into BigQuery: %w", err)
	}
	return nil
}

func buildRecords(rows []Row, now time.Time) []*sampleRecord {
	appendedAt := now.UTC()
	snapshotDate := civil.DateOf(appendedAt.In(window.IST))
	records := make([]*sampleRecord, len(rows))
	for i, row := range rows {
		records[i] = &sampleRecord{
			Row:          row,
			AppendedAt:   appendedAt,
			RowIndex:     int64(i),
			SnapshotDate: snapshotDate,
		}
	}
	return records
}

// Close releases the BigQuery client.
func (s *BigQueryStore) Close() error {
	return s.client.Close()
}
