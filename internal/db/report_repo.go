package db

import (
	"context"
	"time"

	"vaxingest/internal/report"
	"vaxingest/internal/types"
)

// Schema statements. Identifiers are left unquoted, so PostgreSQL folds them
// to lower case; every query below does the same.
const (
	createSitesSQL = `CREATE TABLE IF NOT EXISTS Sites (
		SiteId  INT PRIMARY KEY,
		Name    VARCHAR(255),
		ZipCode VARCHAR(20)
	)`

	createDataSQL = `CREATE TABLE IF NOT EXISTS Data (
		SiteId     INT REFERENCES Sites (SiteId),
		Date       DATE,
		FirstShot  INT,
		SecondShot INT,
		PRIMARY KEY (SiteId, Date)
	)`
)

// schemaLockKey is the advisory lock held while creating tables. Concurrent
// CREATE TABLE IF NOT EXISTS on a fresh database can otherwise collide on
// the pg_type catalog.
const schemaLockKey int64 = 0x76617869 // "vaxi"

// ReportRepository reads and writes the Sites and Data tables.
type ReportRepository struct {
	db DBTX
}

// NewReportRepository creates a new ReportRepository backed by the given
// connection or transaction.
func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// EnsureSchema creates both tables if they do not exist. It is idempotent and
// never alters an existing table. It must run inside a transaction: the
// advisory lock it takes is released at commit or rollback.
func (r *ReportRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock schema", err)
	}
	if _, err := r.db.Exec(ctx, createSitesSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create Sites table", err)
	}
	if _, err := r.db.Exec(ctx, createDataSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create Data table", err)
	}
	return nil
}

// DataExists reports whether a Data row exists for (siteID, date). A query
// failure is returned, never read as "absent".
func (r *ReportRepository) DataExists(ctx context.Context, siteID int, date time.Time) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(1) FROM Data WHERE SiteId = $1 AND Date = $2`,
		siteID, date,
	).Scan(&n)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check for existing report", err)
	}
	return n > 0, nil
}

// InsertSite adds the site unless its id is already present. An existing
// site's name and zip code are never changed. Returns whether a row was
// created.
func (r *ReportRepository) InsertSite(ctx context.Context, site report.Site) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO Sites (SiteId, Name, ZipCode)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (SiteId) DO NOTHING`,
		site.ID.Value, site.Name, site.ZipCode,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert site", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateData overwrites the shot counts for (siteID, date) and returns the
// number of rows changed.
func (r *ReportRepository) UpdateData(ctx context.Context, siteID int, date time.Time, sums report.Sums) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE Data SET FirstShot = $1, SecondShot = $2
		 WHERE SiteId = $3 AND Date = $4`,
		sums.FirstShot, sums.SecondShot, siteID, date,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to update report", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertData writes the shot counts for (siteID, date), replacing any row
// already there. Returns true when a new row was inserted.
func (r *ReportRepository) UpsertData(ctx context.Context, siteID int, date time.Time, sums report.Sums) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO Data (SiteId, Date, FirstShot, SecondShot)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (SiteId, Date) DO UPDATE
		 SET FirstShot = EXCLUDED.FirstShot, SecondShot = EXCLUDED.SecondShot
		 RETURNING (xmax = 0)`,
		siteID, date, sums.FirstShot, sums.SecondShot,
	).Scan(&inserted)
	if err != nil {
		if isUniqueViolation(err) {
			return false, types.NewAppError(types.ErrCodeConflictDuplicateReport, "report already exists", err)
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert report", err)
	}
	return inserted, nil
}
