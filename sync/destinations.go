package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/distlock"
	"github.com/syc/clubsync/google"
)

const defaultShareRole = "reader"

// Destination is a resolved (collection, table) pair ready for writing.
type Destination struct {
	CollectionID    string
	CollectionTitle string
	Table           Table
	// Created is set when the table did not exist and was created with
	// its header by this resolution.
	Created bool
}

// DestinationResolver maps a collection kind, year and table title onto a
// spreadsheet tab, creating whatever is missing.
type DestinationResolver struct {
	cfg      *config.Config
	store    SheetStore
	registry CollectionRegistry
	locker   distlock.Locker

	mu    sync.Mutex
	cache map[string]string // collection title -> spreadsheet id
}

// NewDestinationResolver builds a resolver. registry may be nil.
func NewDestinationResolver(cfg *config.Config, store SheetStore, registry CollectionRegistry, locker distlock.Locker) *DestinationResolver {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &DestinationResolver{
		cfg:      cfg,
		store:    store,
		registry: registry,
		locker:   locker,
		cache:    make(map[string]string),
	}
}

// Resolve opens or creates the collection for kind/year, then finds the
// table by exact title or creates it with header as row one. A remembered
// collection that no longer exists is forgotten and resolved again.
func (r *DestinationResolver) Resolve(ctx context.Context, kind string, year int, tableTitle string, header []interface{}) (Destination, error) {
	dest, err := r.resolve(ctx, kind, year, tableTitle, header)
	if errors.Is(err, google.ErrSpreadsheetNotFound) {
		slog.Warn("Collection is gone, resolving again",
			"title", dest.CollectionTitle, "id", dest.CollectionID, "error", err)
		r.forget(ctx, dest.CollectionTitle)
		dest, err = r.resolve(ctx, kind, year, tableTitle, header)
	}
	if err != nil {
		return Destination{}, err
	}
	return dest, nil
}

// resolve returns the collection id and title alongside any error so that
// Resolve can evict a stale collection.
func (r *DestinationResolver) resolve(ctx context.Context, kind string, year int, tableTitle string, header []interface{}) (Destination, error) {
	id, title, err := r.Collection(ctx, kind, year)
	if err != nil {
		return Destination{}, err
	}
	dest := Destination{CollectionID: id, CollectionTitle: title}

	if t, ok, err := r.findTable(ctx, id, tableTitle); err != nil {
		return dest, err
	} else if ok {
		dest.Table = t
		return dest, nil
	}

	unlock, err := r.locker.Lock(ctx, "create-table:"+id+"/"+tableTitle)
	if err != nil {
		return dest, fmt.Errorf("locking table %q: %w", tableTitle, err)
	}
	defer unlock()

	// Someone may have created it while we waited.
	if t, ok, err := r.findTable(ctx, id, tableTitle); err != nil {
		return dest, err
	} else if ok {
		dest.Table = t
		return dest, nil
	}

	t, err := r.store.CreateTable(ctx, id, tableTitle, len(header))
	if err != nil {
		return dest, err
	}
	if err := r.store.AppendRows(ctx, id, t, [][]interface{}{header}); err != nil {
		// A table without its header would be found by title next time and
		// take data in row one.
		if derr := r.store.DeleteTable(ctx, id, t); derr != nil {
			slog.Error("Failed to remove table without header", "collection", title, "table", tableTitle, "error", derr)
		}
		return dest, fmt.Errorf("writing header of %q: %w", tableTitle, err)
	}
	slog.Info("Created table", "collection", title, "table", tableTitle, "columns", len(header))

	dest.Table = t
	dest.Created = true
	return dest, nil
}

func (r *DestinationResolver) findTable(ctx context.Context, collectionID, title string) (Table, bool, error) {
	tables, err := r.store.ListTables(ctx, collectionID)
	if err != nil {
		return Table{}, false, err
	}
	for _, t := range tables {
		if t.Title == title {
			return t, true, nil
		}
	}
	return Table{}, false, nil
}

// Collection opens or creates the spreadsheet for a kind and year. A new
// spreadsheet is shared with the kind's configured grants.
func (r *DestinationResolver) Collection(ctx context.Context, kind string, year int) (id, title string, err error) {
	title = r.cfg.CollectionTitle(kind, year)

	id, ok, err := r.lookup(ctx, title)
	if err != nil || ok {
		return id, title, err
	}

	unlock, err := r.locker.Lock(ctx, "create-collection:"+title)
	if err != nil {
		return "", title, fmt.Errorf("locking collection %q: %w", title, err)
	}
	defer unlock()

	if id, ok, err := r.lookup(ctx, title); err != nil || ok {
		return id, title, err
	}

	id, err = r.store.CreateCollection(ctx, title)
	if err != nil {
		return "", title, err
	}
	slog.Info("Created collection", "title", title, "url", google.FormatSpreadsheetURL(id))

	for _, g := range r.cfg.Collection(kind).Grants {
		if g.Role == "" {
			g.Role = defaultShareRole
		}
		// Sharing is best effort; the data is still written.
		if err := r.store.ShareCollection(ctx, id, g); err != nil {
			slog.Warn("Failed to share collection", "title", title, "role", g.Role, "error", err)
		}
	}

	r.remember(ctx, title, id)
	return id, title, nil
}

// ExistingCollection is Collection without the create step. ok is false
// when no spreadsheet has the title yet.
func (r *DestinationResolver) ExistingCollection(ctx context.Context, kind string, year int) (id string, ok bool, err error) {
	return r.lookup(ctx, r.cfg.CollectionTitle(kind, year))
}

// lookup checks the in-memory cache, then the registry, then Drive.
func (r *DestinationResolver) lookup(ctx context.Context, title string) (string, bool, error) {
	r.mu.Lock()
	id, ok := r.cache[title]
	r.mu.Unlock()
	if ok {
		return id, true, nil
	}

	if r.registry != nil {
		id, ok, err := r.registry.Lookup(ctx, title)
		if err != nil {
			slog.Warn("Workbook registry lookup failed", "title", title, "error", err)
		} else if ok {
			r.mu.Lock()
			r.cache[title] = id
			r.mu.Unlock()
			return id, true, nil
		}
	}

	id, err := r.store.FindCollection(ctx, title)
	if errors.Is(err, google.ErrSpreadsheetNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("finding collection %q: %w", title, err)
	}
	r.remember(ctx, title, id)
	return id, true, nil
}

func (r *DestinationResolver) forget(ctx context.Context, title string) {
	r.mu.Lock()
	delete(r.cache, title)
	r.mu.Unlock()

	if r.registry == nil {
		return
	}
	if err := r.registry.Delete(ctx, title); err != nil {
		slog.Warn("Failed to drop workbook from registry", "title", title, "error", err)
	}
}

func (r *DestinationResolver) remember(ctx context.Context, title, id string) {
	r.mu.Lock()
	r.cache[title] = id
	r.mu.Unlock()

	if r.registry == nil {
		return
	}
	if err := r.registry.Save(ctx, title, id); err != nil {
		slog.Warn("Failed to save workbook to registry", "title", title, "error", err)
	}
}
