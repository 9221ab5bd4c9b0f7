package authority

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
)

// RecordFailure describes a record whose rights could not be migrated.
type RecordFailure struct {
	ID       int64
	Username string
	Err      error
}

// MigrationReport summarises a Migrate run.
type MigrationReport struct {
	From     rights.Version
	To       rights.Version
	Migrated int
	Failed   []RecordFailure
}

// Migrate rewrites every stored rights mask from the active schema version
// to the target version.
//
// The version marker is written before the records are visited. Records
// are updated one by one without a surrounding transaction, so when an
// update fails the marker already names the target version while that
// record still holds rights of the old layout. The failures are listed in
// the report and ErrPartialMigration is returned. Callers must keep logons
// away from the store while a migration runs.
func (e *Engine) Migrate(ctx context.Context, to rights.Version) (MigrationReport, error) {
	if !to.Supported() {
		return MigrationReport{}, fmt.Errorf("%w: version %d (supported %d to %d)",
			ErrUnsupportedMigration, int(to), int(rights.MinVersion), int(rights.MaxVersion))
	}
	from, err := e.Version(ctx)
	if err != nil {
		return MigrationReport{}, err
	}
	report := MigrationReport{From: from, To: to}

	if err := e.options.Set(ctx, options.KeyRightsVersion, strconv.Itoa(int(to))); err != nil {
		return report, err
	}
	e.Invalidate()
	defer e.Invalidate()

	records, err := e.store.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("authority: migrate: %w", err)
	}
	for _, rec := range records {
		mask, err := rights.Remap(rec.Rights, from, to)
		if err == nil {
			rec.Rights = mask
			_, err = e.store.Upsert(ctx, rec)
		}
		if err != nil {
			e.logger.Error("migrate rights", slog.Int64("id", rec.ID), slog.String("user", rec.Username), slog.Any("error", err))
			report.Failed = append(report.Failed, RecordFailure{ID: rec.ID, Username: rec.Username, Err: err})
			e.metrics.migrated(false)
			continue
		}
		report.Migrated++
		e.metrics.migrated(true)
	}

	e.logger.Info("rights migrated", slog.Int("from", int(from)), slog.Int("to", int(to)),
		slog.Int("migrated", report.Migrated), slog.Int("failed", len(report.Failed)))
	e.record(ctx, shared.AuditLog{
		Action:   "rights.migrate",
		Entity:   "rights_schema",
		EntityID: strconv.Itoa(int(to)),
		Meta:     map[string]any{"from": int(from), "migrated": report.Migrated, "failed": len(report.Failed)},
	})
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d records", ErrPartialMigration, len(report.Failed), len(records))
	}
	return report, nil
}
