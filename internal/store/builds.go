package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
)

// BuildStatus is the lifecycle state of a build run.
type BuildStatus string

const (
	BuildRunning   BuildStatus = "running"
	BuildCompleted BuildStatus = "completed"
	BuildFailed    BuildStatus = "failed"
)

// BuildRun records one request to build a month: the SPC and capability
// gold builds plus the catalog load.
type BuildRun struct {
	ID                string      `json:"id"`
	Tier              string      `json:"tier"`
	Asof              string      `json:"asof"`
	Window            string      `json:"baseline_window"`
	Status            BuildStatus `json:"status"`
	Force             bool        `json:"force"`
	SPCBuildID        string      `json:"spc_build_id,omitempty"`
	CapabilityBuildID string      `json:"capability_build_id,omitempty"`
	SPCSkipped        bool        `json:"spc_skipped"`
	CapabilitySkipped bool        `json:"capability_skipped"`
	LimitsRows        int         `json:"limits_rows"`
	AlertsRows        int         `json:"alerts_rows"`
	CapabilityRows    int         `json:"capability_rows"`
	Error             string      `json:"error,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
}

// BuildFilter narrows ListBuilds. Empty fields match everything.
type BuildFilter struct {
	Tier   string
	Asof   string
	Status BuildStatus
	Limit  int
}

const buildColumns = `id, tier, asof, baseline_window, status, forced, spc_build_id, capability_build_id,
	spc_skipped, capability_skipped, limits_rows, alerts_rows, capability_rows, error, started_at, finished_at`

// InsertBuild records a new build run.
func (s *Store) InsertBuild(ctx context.Context, b *BuildRun) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO builds (`+buildColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Tier, b.Asof, b.Window, string(b.Status), b.Force,
		nullString(b.SPCBuildID), nullString(b.CapabilityBuildID),
		b.SPCSkipped, b.CapabilitySkipped, b.LimitsRows, b.AlertsRows, b.CapabilityRows,
		nullString(b.Error), formatTime(b.StartedAt), nullTimePtr(b.FinishedAt))
	if err != nil {
		return apperrors.NewStorageError("failed to insert build", err).WithContext("build_id", b.ID)
	}
	return nil
}

// UpdateBuild overwrites the mutable fields of a build run.
func (s *Store) UpdateBuild(ctx context.Context, b *BuildRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE builds SET baseline_window = ?, status = ?, spc_build_id = ?, capability_build_id = ?,
			spc_skipped = ?, capability_skipped = ?, limits_rows = ?, alerts_rows = ?,
			capability_rows = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		b.Window, string(b.Status), nullString(b.SPCBuildID), nullString(b.CapabilityBuildID),
		b.SPCSkipped, b.CapabilitySkipped, b.LimitsRows, b.AlertsRows, b.CapabilityRows,
		nullString(b.Error), nullTimePtr(b.FinishedAt), b.ID)
	if err != nil {
		return apperrors.NewStorageError("failed to update build", err).WithContext("build_id", b.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("build " + b.ID)
	}
	return nil
}

// GetBuild returns one build run.
func (s *Store) GetBuild(ctx context.Context, id string) (*BuildRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("build " + id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read build", err).WithContext("build_id", id)
	}
	return b, nil
}

// ListBuilds returns build runs, newest first.
func (s *Store) ListBuilds(ctx context.Context, f BuildFilter) ([]BuildRun, error) {
	var where []string
	var args []any
	if f.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, f.Tier)
	}
	if f.Asof != "" {
		where = append(where, "asof = ?")
		args = append(args, f.Asof)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query builds", err)
	}
	defer rows.Close()

	out := []BuildRun{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan build", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read builds", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(r rowScanner) (*BuildRun, error) {
	var b BuildRun
	var status, started string
	var spcID, capID, errText, finished sql.NullString
	if err := r.Scan(&b.ID, &b.Tier, &b.Asof, &b.Window, &status, &b.Force, &spcID, &capID,
		&b.SPCSkipped, &b.CapabilitySkipped, &b.LimitsRows, &b.AlertsRows, &b.CapabilityRows,
		&errText, &started, &finished); err != nil {
		return nil, err
	}
	b.Status = BuildStatus(status)
	b.SPCBuildID, b.CapabilityBuildID, b.Error = spcID.String, capID.String, errText.String

	var err error
	if b.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, err
	}
	if finished.Valid {
		ts, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, err
		}
		b.FinishedAt = &ts
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(ts time.Time) string {
	return ts.UTC().Format(timeLayout)
}

func nullTimePtr(ts *time.Time) sql.NullString {
	if ts == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*ts), Valid: true}
}
