package sync

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/syc/clubsync/google"
	"github.com/syc/clubsync/ratelimit"
)

const valueInputUserEntered = "USER_ENTERED"

// Table is one tab of a collection.
type Table struct {
	ID    int64
	Title string
}

// SheetStore is the narrow set of spreadsheet operations the sync engine
// needs (enables mocking). Row numbers are 1-based; row 1 is the header.
// ListTables wraps google.ErrSpreadsheetNotFound when the collection is gone.
type SheetStore interface {
	FindCollection(ctx context.Context, title string) (string, error)
	CreateCollection(ctx context.Context, title string) (string, error)
	ShareCollection(ctx context.Context, collectionID string, grant google.Grant) error

	ListTables(ctx context.Context, collectionID string) ([]Table, error)
	CreateTable(ctx context.Context, collectionID, title string, cols int) (Table, error)
	DeleteTable(ctx context.Context, collectionID string, t Table) error

	// ClearTable removes every value and shrinks the table to one row.
	ClearTable(ctx context.Context, collectionID string, t Table) error
	FreezeHeader(ctx context.Context, collectionID string, t Table) error

	AppendRows(ctx context.Context, collectionID string, t Table, rows [][]interface{}) error
	ReadRows(ctx context.Context, collectionID string, t Table) ([][]interface{}, error)
	ReadColumn(ctx context.Context, collectionID string, t Table) ([]string, error)
	UpdateRow(ctx context.Context, collectionID string, t Table, rowNum int, row []interface{}) error
	DeleteRow(ctx context.Context, collectionID string, t Table, rowNum int) error
}

// GoogleStore implements SheetStore with the Sheets and Drive APIs. Every
// call goes through the Sheets rate limiter.
type GoogleStore struct {
	sheets  *sheets.Service
	drive   *google.Drive
	limiter *ratelimit.RateLimiter
}

// Compile-time check that GoogleStore implements SheetStore
var _ SheetStore = (*GoogleStore)(nil)

func NewGoogleStore(srv *sheets.Service, drv *google.Drive) *GoogleStore {
	return &GoogleStore{
		sheets:  srv,
		drive:   drv,
		limiter: ratelimit.NewRateLimiter(ratelimit.SheetsConfig()),
	}
}

func (s *GoogleStore) FindCollection(ctx context.Context, title string) (string, error) {
	var id string
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		var err error
		id, err = s.drive.FindSpreadsheet(ctx, title)
		return err
	})
	return id, err
}

func (s *GoogleStore) CreateCollection(ctx context.Context, title string) (string, error) {
	var id string
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		var err error
		id, err = s.drive.CreateSpreadsheet(ctx, title)
		return err
	})
	return id, err
}

func (s *GoogleStore) ShareCollection(ctx context.Context, collectionID string, grant google.Grant) error {
	return s.limiter.ExecuteWithRetry(ctx, func() error {
		return s.drive.ShareSpreadsheet(ctx, collectionID, grant)
	})
}

func (s *GoogleStore) ListTables(ctx context.Context, collectionID string) ([]Table, error) {
	var resp *sheets.Spreadsheet
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		var err error
		resp, err = s.sheets.Spreadsheets.Get(collectionID).
			Fields("sheets.properties(sheetId,title)").
			Context(ctx).
			Do()
		return err
	})
	if google.IsNotFound(err) {
		return nil, fmt.Errorf("listing tables of %s: %w", collectionID, google.ErrSpreadsheetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tables of %s: %w", collectionID, err)
	}

	tables := make([]Table, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties == nil {
			continue
		}
		tables = append(tables, Table{ID: sh.Properties.SheetId, Title: sh.Properties.Title})
	}
	return tables, nil
}

func (s *GoogleStore) CreateTable(ctx context.Context, collectionID, title string, cols int) (Table, error) {
	req := &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title: title,
				GridProperties: &sheets.GridProperties{
					RowCount:    1,
					ColumnCount: int64(cols),
				},
			},
		},
	}
	resp, err := s.batchUpdate(ctx, collectionID, req)
	if err != nil {
		return Table{}, fmt.Errorf("creating table %q: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return Table{}, fmt.Errorf("creating table %q: empty reply", title)
	}
	props := resp.Replies[0].AddSheet.Properties
	return Table{ID: props.SheetId, Title: props.Title}, nil
}

func (s *GoogleStore) DeleteTable(ctx context.Context, collectionID string, t Table) error {
	req := &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{
			SheetId:         t.ID,
			ForceSendFields: []string{"SheetId"},
		},
	}
	if _, err := s.batchUpdate(ctx, collectionID, req); err != nil {
		return fmt.Errorf("deleting table %q: %w", t.Title, err)
	}
	return nil
}

func (s *GoogleStore) ClearTable(ctx context.Context, collectionID string, t Table) error {
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		_, err := s.sheets.Spreadsheets.Values.Clear(
			collectionID,
			google.A1(t.Title, ""),
			&sheets.ClearValuesRequest{},
		).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing table %q: %w", t.Title, err)
	}

	req := &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         t.ID,
				GridProperties:  &sheets.GridProperties{RowCount: 1},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.rowCount",
		},
	}
	if _, err := s.batchUpdate(ctx, collectionID, req); err != nil {
		return fmt.Errorf("resizing table %q: %w", t.Title, err)
	}
	return nil
}

func (s *GoogleStore) FreezeHeader(ctx context.Context, collectionID string, t Table) error {
	req := &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         t.ID,
				GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.frozenRowCount",
		},
	}
	if _, err := s.batchUpdate(ctx, collectionID, req); err != nil {
		return fmt.Errorf("freezing header of %q: %w", t.Title, err)
	}
	return nil
}

func (s *GoogleStore) AppendRows(ctx context.Context, collectionID string, t Table, rows [][]interface{}) error {
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		_, err := s.sheets.Spreadsheets.Values.Append(
			collectionID,
			google.A1(t.Title, "A1"),
			&sheets.ValueRange{Values: rows},
		).ValueInputOption(valueInputUserEntered).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("appending %d rows to %q: %w", len(rows), t.Title, err)
	}
	return nil
}

func (s *GoogleStore) ReadRows(ctx context.Context, collectionID string, t Table) ([][]interface{}, error) {
	return s.readRange(ctx, collectionID, google.A1(t.Title, ""))
}

func (s *GoogleStore) ReadColumn(ctx context.Context, collectionID string, t Table) ([]string, error) {
	values, err := s.readRange(ctx, collectionID, google.A1(t.Title, "A:A"))
	if err != nil {
		return nil, err
	}
	col := make([]string, len(values))
	for i, row := range values {
		if len(row) > 0 {
			col[i] = fmt.Sprint(row[0])
		}
	}
	return col, nil
}

func (s *GoogleStore) readRange(ctx context.Context, collectionID, rng string) ([][]interface{}, error) {
	var resp *sheets.ValueRange
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		var err error
		resp, err = s.sheets.Spreadsheets.Values.Get(collectionID, rng).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (s *GoogleStore) UpdateRow(ctx context.Context, collectionID string, t Table, rowNum int, row []interface{}) error {
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		_, err := s.sheets.Spreadsheets.Values.Update(
			collectionID,
			google.A1(t.Title, fmt.Sprintf("A%d", rowNum)),
			&sheets.ValueRange{Values: [][]interface{}{row}},
		).ValueInputOption(valueInputUserEntered).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("updating row %d of %q: %w", rowNum, t.Title, err)
	}
	return nil
}

func (s *GoogleStore) DeleteRow(ctx context.Context, collectionID string, t Table, rowNum int) error {
	req := &sheets.Request{
		DeleteDimension: &sheets.DeleteDimensionRequest{
			Range: &sheets.DimensionRange{
				SheetId:         t.ID,
				Dimension:       "ROWS",
				StartIndex:      int64(rowNum - 1),
				EndIndex:        int64(rowNum),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		},
	}
	if _, err := s.batchUpdate(ctx, collectionID, req); err != nil {
		return fmt.Errorf("deleting row %d of %q: %w", rowNum, t.Title, err)
	}
	return nil
}

func (s *GoogleStore) batchUpdate(ctx context.Context, collectionID string, reqs ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	var resp *sheets.BatchUpdateSpreadsheetResponse
	err := s.limiter.ExecuteWithRetry(ctx, func() error {
		var err error
		resp, err = s.sheets.Spreadsheets.BatchUpdate(collectionID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: reqs,
		}).Context(ctx).Do()
		return err
	})
	return resp, err
}
