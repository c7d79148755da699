package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the worksheet used when none is configured.
const DefaultSheetName = "Sheet1"

// SheetsStore keeps rows in a Google Sheets worksheet. Row 1 is the header.
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsStore creates a Sheets-backed store. Without a credentials file,
// Application Default Credentials are used.
func NewSheetsStore(ctx context.Context, opts SheetsOptions) (*SheetsStore, error) {
	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	service, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewService: %w", err)
	}

	name := opts.SheetName
	if name == "" {
		name = DefaultSheetName
	}
	return &SheetsStore{
		service:       service,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     name,
	}, nil
}

// a1 builds an A1 range on the configured worksheet.
func (s *SheetsStore) a1(cells string) string {
	quoted := "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// ReadAll returns every row of the worksheet; the first row is the header.
func (s *SheetsStore) ReadAll(ctx context.Context) (*Snapshot, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("")).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheetName, err)
	}

	snapshot := &Snapshot{}
	for i, values := range resp.Values {
		row := make(Row, len(values))
		for j, v := range values {
			row[j] = cellString(v)
		}
		if i == 0 {
			snapshot.Header = row
			continue
		}
		snapshot.Rows = append(snapshot.Rows, row)
	}
	return snapshot, nil
}

// InitializeSchema writes the header into row 1. Data rows are left untouched.
func (s *SheetsStore) InitializeSchema(ctx context.Context, header []string) error {
	values := make([]interface{}, len(header))
	for i, h := range header {
		values[i] = h
	}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.a1("1:1"), &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

// AppendRows appends rows after the last non-empty row in a single request.
// RAW input keeps every cell a literal string so timestamps round-trip unchanged.
func (s *SheetsStore) AppendRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = c
		}
		values[i] = cells
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append %d rows: %w", len(rows), err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *SheetsStore) Close() error {
	return nil
}
