package db

import (
	"context"
	"log/slog"
	"time"

	"vaxingest/internal/report"
	"vaxingest/internal/types"
)

// Outcome says whether a save created or overwrote the Data row.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// SaveResult describes a completed save.
type SaveResult struct {
	Outcome     Outcome     `json:"outcome"`
	SiteCreated bool        `json:"site_created"`
	SiteID      int         `json:"site_id"`
	Date        time.Time   `json:"date"`
	Sums        report.Sums `json:"sums"`
}

// Opener opens a database connection. *Connector satisfies it.
type Opener interface {
	Connect(ctx context.Context) (Conn, error)
}

// Store saves validated records. Each Save opens its own connection and
// closes it before returning.
type Store struct {
	opener Opener
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(opener Opener, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{opener: opener, logger: logger}
}

// Save merges one record into Sites and Data.
//
// The existence check and the writes run in a single transaction, and both
// writes are upserts, so concurrent saves for the same (site, date) leave one
// row holding the last committed sums. A site row is created only when
// missing; an existing site is never modified. On any error nothing is
// committed.
func (s *Store) Save(ctx context.Context, rec *report.Record) (SaveResult, error) {
	date, err := rec.Date.Time()
	if err != nil {
		return SaveResult{}, types.NewAppError(types.ErrCodeParseInvalidRecord, "invalid report date", err)
	}
	siteID := rec.Site.ID.Value
	sums := report.ShotSums(rec.Vaccines)

	conn, err := s.opener.Connect(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	defer func() {
		if conn.IsClosed() {
			return
		}
		// Use a fresh context so cancellation does not leak the connection.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := conn.Close(closeCtx); cerr != nil {
			s.logger.WarnContext(ctx, "failed to close database connection", "error", cerr)
		}
	}()

	if err := s.ensureSchema(ctx, conn); err != nil {
		return SaveResult{}, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return SaveResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	repo := NewReportRepository(tx)
	result := SaveResult{SiteID: siteID, Date: date, Sums: sums}

	exists, err := repo.DataExists(ctx, siteID, date)
	if err != nil {
		return SaveResult{}, err
	}

	if exists {
		n, err := repo.UpdateData(ctx, siteID, date, sums)
		if err != nil {
			return SaveResult{}, err
		}
		result.Outcome = OutcomeUpdated
		if n == 0 {
			// Deleted between the check and the update.
			if err := s.upsert(ctx, repo, rec.Site, date, sums, &result); err != nil {
				return SaveResult{}, err
			}
		}
	} else {
		if err := s.upsert(ctx, repo, rec.Site, date, sums, &result); err != nil {
			return SaveResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return SaveResult{}, types.NewAppError(types.ErrCodeConflictDuplicateReport, "report already exists", err)
		}
		return SaveResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to commit report", err)
	}

	s.logger.DebugContext(ctx, "report saved",
		"site_id", siteID,
		"date", date.Format(time.DateOnly),
		"outcome", string(result.Outcome),
		"site_created", result.SiteCreated,
	)
	return result, nil
}

// ensureSchema creates the tables in a short transaction of its own so the
// schema lock is not held while the report is written.
func (s *Store) ensureSchema(ctx context.Context, conn Conn) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin schema transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := NewReportRepository(tx).EnsureSchema(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit schema", err)
	}
	return nil
}

// upsert ensures the site row and writes the Data row.
func (s *Store) upsert(ctx context.Context, repo *ReportRepository, site report.Site, date time.Time, sums report.Sums, result *SaveResult) error {
	created, err := repo.InsertSite(ctx, site)
	if err != nil {
		return err
	}
	inserted, err := repo.UpsertData(ctx, site.ID.Value, date, sums)
	if err != nil {
		return err
	}
	result.SiteCreated = created
	if inserted {
		result.Outcome = OutcomeInserted
	} else {
		result.Outcome = OutcomeUpdated
	}
	return nil
}
