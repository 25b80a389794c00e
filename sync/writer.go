package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syc/clubsync/distlock"
	"github.com/syc/clubsync/google"
)

// ErrNotFound is returned when no table of the searched collections has
// the id in column A.
var ErrNotFound = errors.New("row not found")

// Writer applies rows to destinations. Every mutation of a table runs
// under that table's lock.
type Writer struct {
	store  SheetStore
	locker distlock.Locker
}

// NewWriter creates a writer. A nil locker serializes within the process only.
func NewWriter(store SheetStore, locker distlock.Locker) *Writer {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Writer{store: store, locker: locker}
}

func tableLockKey(collectionID string, t Table) string {
	return fmt.Sprintf("table:%s/%d", collectionID, t.ID)
}

func (w *Writer) lock(ctx context.Context, collectionID string, t Table) (func(), error) {
	unlock, err := w.locker.Lock(ctx, tableLockKey(collectionID, t))
	if err != nil {
		return nil, fmt.Errorf("locking table %q: %w", t.Title, err)
	}
	return unlock, nil
}

// ReplaceTable rewrites the table as header plus rows. An empty batch is
// skipped and leaves the table as it was. Returns the rows written.
func (w *Writer) ReplaceTable(ctx context.Context, dest Destination, header []interface{}, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		slog.Info("No rows fetched, leaving table untouched",
			"collection", dest.CollectionTitle, "table", dest.Table.Title)
		return 0, nil
	}

	unlock, err := w.lock(ctx, dest.CollectionID, dest.Table)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := w.store.ClearTable(ctx, dest.CollectionID, dest.Table); err != nil {
		return 0, err
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, header)
	values = append(values, rows...)
	if err := w.store.AppendRows(ctx, dest.CollectionID, dest.Table, values); err != nil {
		return 0, err
	}

	if err := w.store.FreezeHeader(ctx, dest.CollectionID, dest.Table); err != nil {
		// Cosmetic only.
		slog.Warn("Failed to freeze header", "table", dest.Table.Title, "error", err)
	}
	return len(rows), nil
}

// AppendRow adds one row after the last row of the table.
func (w *Writer) AppendRow(ctx context.Context, dest Destination, row []interface{}) error {
	unlock, err := w.lock(ctx, dest.CollectionID, dest.Table)
	if err != nil {
		return err
	}
	defer unlock()

	return w.store.AppendRows(ctx, dest.CollectionID, dest.Table, [][]interface{}{row})
}

// rowRef locates a row found by id.
type rowRef struct {
	collectionID string
	table        Table
	tableCount   int
}

// find scans column A of every table of the collections, in order, and
// returns the first table holding id below the header. Collections that
// were deleted are skipped.
func (w *Writer) find(ctx context.Context, collectionIDs []string, id string) (rowRef, error) {
	for _, cid := range collectionIDs {
		tables, err := w.store.ListTables(ctx, cid)
		if errors.Is(err, google.ErrSpreadsheetNotFound) {
			slog.Warn("Skipping collection that no longer exists", "collection", cid)
			continue
		}
		if err != nil {
			return rowRef{}, err
		}
		for _, t := range tables {
			col, err := w.store.ReadColumn(ctx, cid, t)
			if err != nil {
				return rowRef{}, err
			}
			if _, ok := rowOf(col, id); ok {
				return rowRef{collectionID: cid, table: t, tableCount: len(tables)}, nil
			}
		}
	}
	return rowRef{}, ErrNotFound
}

// rowOf returns the 1-based row number holding id in a column, skipping the
// header.
func rowOf(col []string, id string) (int, bool) {
	for i := 1; i < len(col); i++ {
		if col[i] == id {
			return i + 1, true
		}
	}
	return 0, false
}

// locate finds the row again under the table lock, since rows may have
// moved between the scan and the lock.
func (w *Writer) locate(ctx context.Context, ref rowRef, id string) (rowNum, dataRows int, err error) {
	col, err := w.store.ReadColumn(ctx, ref.collectionID, ref.table)
	if err != nil {
		return 0, 0, err
	}
	rowNum, ok := rowOf(col, id)
	if !ok {
		return 0, 0, ErrNotFound
	}
	return rowNum, len(col) - 1, nil
}

// UpdateByID overwrites the row whose column A equals id.
func (w *Writer) UpdateByID(ctx context.Context, collectionIDs []string, id string, row []interface{}) error {
	ref, err := w.find(ctx, collectionIDs, id)
	if err != nil {
		return err
	}

	unlock, err := w.lock(ctx, ref.collectionID, ref.table)
	if err != nil {
		return err
	}
	defer unlock()

	rowNum, _, err := w.locate(ctx, ref, id)
	if err != nil {
		return err
	}
	slog.Info("Updating row", "table", ref.table.Title, "row", rowNum, "id", id)
	return w.store.UpdateRow(ctx, ref.collectionID, ref.table, rowNum, row)
}

// DeleteByID removes the row whose column A equals id. When that row is
// the table's last data row the whole table is deleted instead, unless it
// is the collection's only table.
func (w *Writer) DeleteByID(ctx context.Context, collectionIDs []string, id string) error {
	ref, err := w.find(ctx, collectionIDs, id)
	if err != nil {
		return err
	}

	unlock, err := w.lock(ctx, ref.collectionID, ref.table)
	if err != nil {
		return err
	}
	defer unlock()

	rowNum, dataRows, err := w.locate(ctx, ref, id)
	if err != nil {
		return err
	}

	if dataRows <= 1 && ref.tableCount > 1 {
		slog.Info("Deleting emptied table", "table", ref.table.Title, "id", id)
		return w.store.DeleteTable(ctx, ref.collectionID, ref.table)
	}
	slog.Info("Deleting row", "table", ref.table.Title, "row", rowNum, "id", id)
	return w.store.DeleteRow(ctx, ref.collectionID, ref.table, rowNum)
}
