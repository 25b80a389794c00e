package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"

	"github.com/syc/clubsync/google"
)

// workbooksCollection is the PocketBase collection caching spreadsheet ids
// by title.
const workbooksCollection = "report_workbooks"

// WorkbookRecord is one cached spreadsheet.
type WorkbookRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	SpreadsheetID string `json:"spreadsheet_id"`
	URL           string `json:"url"`
}

// CollectionRegistry remembers which spreadsheet backs a collection title
// so lookups skip the Drive search.
type CollectionRegistry interface {
	Lookup(ctx context.Context, title string) (string, bool, error)
	Save(ctx context.Context, title, spreadsheetID string) error
	Delete(ctx context.Context, title string) error
}

// WorkbookRegistry stores the cache in PocketBase.
type WorkbookRegistry struct {
	app core.App
}

// Compile-time check that WorkbookRegistry implements CollectionRegistry
var _ CollectionRegistry = (*WorkbookRegistry)(nil)

func NewWorkbookRegistry(app core.App) *WorkbookRegistry {
	return &WorkbookRegistry{app: app}
}

// EnsureWorkbookCollection creates the report_workbooks collection if it
// does not exist yet.
func EnsureWorkbookCollection(app core.App) error {
	if _, err := app.FindCollectionByNameOrId(workbooksCollection); err == nil {
		return nil
	}

	collection := core.NewBaseCollection(workbooksCollection)
	collection.Fields.Add(
		&core.TextField{Name: "title", Required: true},
		&core.TextField{Name: "spreadsheet_id", Required: true},
		&core.URLField{Name: "url"},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	collection.AddIndex("idx_report_workbooks_title", true, "title", "")

	if err := app.Save(collection); err != nil {
		return fmt.Errorf("creating %s collection: %w", workbooksCollection, err)
	}
	slog.Info("Created workbook registry collection", "collection", workbooksCollection)
	return nil
}

// Lookup returns the cached spreadsheet id for a title.
func (r *WorkbookRegistry) Lookup(_ context.Context, title string) (string, bool, error) {
	record, err := r.app.FindFirstRecordByData(workbooksCollection, "title", title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up workbook %q: %w", title, err)
	}
	return record.GetString("spreadsheet_id"), true, nil
}

// Save creates or updates the cache entry for a title.
func (r *WorkbookRegistry) Save(_ context.Context, title, spreadsheetID string) error {
	collection, err := r.app.FindCollectionByNameOrId(workbooksCollection)
	if err != nil {
		return fmt.Errorf("collection %s not found: %w", workbooksCollection, err)
	}

	record, err := r.app.FindFirstRecordByData(collection, "title", title)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		record = core.NewRecord(collection)
	case err != nil:
		return fmt.Errorf("finding workbook %q: %w", title, err)
	}

	record.Set("title", title)
	record.Set("spreadsheet_id", spreadsheetID)
	record.Set("url", google.FormatSpreadsheetURL(spreadsheetID))

	if err := r.app.Save(record); err != nil {
		return fmt.Errorf("saving workbook record: %w", err)
	}
	return nil
}

// Delete drops the cache entry for a title. A missing entry is not an error.
func (r *WorkbookRegistry) Delete(_ context.Context, title string) error {
	record, err := r.app.FindFirstRecordByData(workbooksCollection, "title", title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finding workbook %q: %w", title, err)
	}
	if err := r.app.Delete(record); err != nil {
		return fmt.Errorf("deleting workbook record: %w", err)
	}
	return nil
}

// ListWorkbooks returns every cached spreadsheet, newest first.
func (r *WorkbookRegistry) ListWorkbooks() ([]WorkbookRecord, error) {
	records, err := r.app.FindRecordsByFilter(workbooksCollection, "", "-updated", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing workbooks: %w", err)
	}

	workbooks := make([]WorkbookRecord, 0, len(records))
	for _, record := range records {
		workbooks = append(workbooks, WorkbookRecord{
			ID:            record.Id,
			Title:         record.GetString("title"),
			SpreadsheetID: record.GetString("spreadsheet_id"),
			URL:           record.GetString("url"),
		})
	}
	return workbooks, nil
}
