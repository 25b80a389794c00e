package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
)

// RunLogRetentionDays is how long batch summaries are kept before pruning.
const RunLogRetentionDays = 30

const runsCollection = "sync_runs"

// RunLog persists batch summaries.
type RunLog interface {
	Record(s *Summary) error
	Prune(before time.Time) (int, error)
}

// PocketBaseRunLog stores summaries in the sync_runs collection.
type PocketBaseRunLog struct {
	app core.App
}

var _ RunLog = (*PocketBaseRunLog)(nil)

func NewPocketBaseRunLog(app core.App) *PocketBaseRunLog {
	return &PocketBaseRunLog{app: app}
}

// EnsureRunLogCollection creates the sync_runs collection if missing.
func EnsureRunLogCollection(app core.App) error {
	if _, err := app.FindCollectionByNameOrId(runsCollection); err == nil {
		return nil
	}

	collection := core.NewBaseCollection(runsCollection)
	collection.Fields.Add(
		&core.TextField{Name: "run_id", Required: true},
		&core.TextField{Name: "source", Required: true},
		&core.NumberField{Name: "year", OnlyInt: true},
		&core.NumberField{Name: "exit_code", OnlyInt: true},
		&core.JSONField{Name: "results"},
		&core.DateField{Name: "started"},
		&core.DateField{Name: "finished"},
		&core.AutodateField{Name: "created", OnCreate: true},
	)
	collection.AddIndex("idx_sync_runs_run_id", true, "run_id", "")

	if err := app.Save(collection); err != nil {
		return fmt.Errorf("creating %s collection: %w", runsCollection, err)
	}
	slog.Info("Created run log collection", "collection", runsCollection)
	return nil
}

// Record saves one finished summary.
func (l *PocketBaseRunLog) Record(s *Summary) error {
	collection, err := l.app.FindCollectionByNameOrId(runsCollection)
	if err != nil {
		return fmt.Errorf("collection %s not found: %w", runsCollection, err)
	}

	results, err := json.Marshal(s.Results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("run_id", s.RunID)
	record.Set("source", s.Source)
	record.Set("year", s.Year)
	record.Set("exit_code", s.ExitCode())
	record.Set("results", string(results))
	record.Set("started", s.StartTime)
	if s.EndTime != nil {
		record.Set("finished", *s.EndTime)
	}

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("saving run %s: %w", s.RunID, err)
	}
	return nil
}

// Prune deletes runs created before the cutoff, at most 1000 per call.
func (l *PocketBaseRunLog) Prune(before time.Time) (int, error) {
	cutoff := before.UTC().Format("2006-01-02 15:04:05.000Z")

	records, err := l.app.FindRecordsByFilter(
		runsCollection,
		fmt.Sprintf("created < '%s'", cutoff),
		"-created",
		1000,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("finding old runs: %w", err)
	}

	deleted := 0
	for _, record := range records {
		if err := l.app.Delete(record); err != nil {
			slog.Warn("Failed to delete sync run", "recordId", record.Id, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
