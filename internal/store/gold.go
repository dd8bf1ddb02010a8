package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/spc"
)

// ReplaceLimits swaps the stored limits of (tier, asof) for limits.
func (s *Store) ReplaceLimits(ctx context.Context, tier, asof, window string, limits []spc.Limits) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM spc_limits WHERE tier = ? AND asof = ?", tier, asof); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO spc_limits (tier, asof, baseline_window, pos, step_key, n, xbar,
				mrbar, sigma, ucl, lcl, ucl_mr, lcl_mr)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, l := range limits {
			if _, err := stmt.ExecContext(ctx, tier, asof, window, i, l.Key, l.N, l.Center,
				nullable(l.MRBar), nullable(l.Sigma), nullable(l.UCL), nullable(l.LCL),
				nullable(l.UCLMR), l.LCLMR); err != nil {
				return fmt.Errorf("insert limits for step %s: %w", l.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("failed to replace limits", err, tier, asof)
	}
	return nil
}

// Limits returns the stored limits of (tier, asof) in step order.
func (s *Store) Limits(ctx context.Context, tier, asof string) ([]spc.Limits, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_key, n, xbar, mrbar, sigma, ucl, lcl, ucl_mr, lcl_mr
		FROM spc_limits WHERE tier = ? AND asof = ? ORDER BY pos
	`, tier, asof)
	if err != nil {
		return nil, storageErr("failed to query limits", err, tier, asof)
	}
	defer rows.Close()

	out := []spc.Limits{}
	for rows.Next() {
		var l spc.Limits
		var mrbar, sigma, ucl, lcl, uclMR sql.NullFloat64
		if err := rows.Scan(&l.Key, &l.N, &l.Center, &mrbar, &sigma, &ucl, &lcl, &uclMR, &l.LCLMR); err != nil {
			return nil, storageErr("failed to scan limits", err, tier, asof)
		}
		l.MRBar, l.Sigma, l.UCL, l.LCL, l.UCLMR = optional(mrbar), optional(sigma), optional(ucl), optional(lcl), optional(uclMR)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read limits", err, tier, asof)
	}
	return out, nil
}

// ReplaceAlerts swaps the stored alert summaries of (tier, asof).
func (s *Store) ReplaceAlerts(ctx context.Context, tier, asof string, alerts []spc.AlertSummary) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM spc_alerts WHERE tier = ? AND asof = ?", tier, asof); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO spc_alerts (tier, asof, pos, step_key, n_points, n_alerts,
				n_i3sigma, n_mr3sigma, first_alert, last_alert)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, a := range alerts {
			if _, err := stmt.ExecContext(ctx, tier, asof, i, a.Key, a.NPoints, a.NAlerts,
				a.Count(spc.RuleI3Sigma), a.Count(spc.RuleMR3Sigma),
				nullTime(a.FirstAlert), nullTime(a.LastAlert)); err != nil {
				return fmt.Errorf("insert alerts for step %s: %w", a.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("failed to replace alerts", err, tier, asof)
	}
	return nil
}

// AlertQuery narrows an alerts listing.
type AlertQuery struct {
	MinAlerts int // keep steps with at least this many alerts
	Limit     int // zero means no limit
}

// Alerts returns alert summaries of (tier, asof), most alerts first.
// Steps with equal counts keep step order.
func (s *Store) Alerts(ctx context.Context, tier, asof string, q AlertQuery) ([]spc.AlertSummary, error) {
	query := `
		SELECT step_key, n_points, n_alerts, n_i3sigma, n_mr3sigma, first_alert, last_alert
		FROM spc_alerts WHERE tier = ? AND asof = ? AND n_alerts >= ?
		ORDER BY n_alerts DESC, pos`
	args := []any{tier, asof, q.MinAlerts}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to query alerts", err, tier, asof)
	}
	defer rows.Close()

	out := []spc.AlertSummary{}
	for rows.Next() {
		var a spc.AlertSummary
		var i3, mr3 int
		var first, last sql.NullString
		if err := rows.Scan(&a.Key, &a.NPoints, &a.NAlerts, &i3, &mr3, &first, &last); err != nil {
			return nil, storageErr("failed to scan alerts", err, tier, asof)
		}
		a.RuleCounts = map[spc.Rule]int{spc.RuleI3Sigma: i3, spc.RuleMR3Sigma: mr3}
		if a.FirstAlert, err = parseNullTime(first); err != nil {
			return nil, storageErr("failed to parse first_alert", err, tier, asof)
		}
		if a.LastAlert, err = parseNullTime(last); err != nil {
			return nil, storageErr("failed to parse last_alert", err, tier, asof)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read alerts", err, tier, asof)
	}
	return out, nil
}

// ReplaceCapability swaps the stored capability rows of (tier, asof).
func (s *Store) ReplaceCapability(ctx context.Context, tier, asof, window string, caps []spc.Capability) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM capability WHERE tier = ? AND asof = ?", tier, asof); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO capability (tier, asof, baseline_window, pos, step_key, n, n_mr, mean,
				std_overall, mrbar, sigma_within, lsl, usl, tol_span, pp, ppk, cp, cpk,
				tol_variants_lsl, tol_variants_usl, tol_inconsistent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range caps {
			if _, err := stmt.ExecContext(ctx, tier, asof, window, i, c.Key, c.N, c.NMR, c.Mean,
				nullable(c.StdOverall), nullable(c.MRBar), nullable(c.SigmaWithin),
				c.LSL, c.USL, c.TolSpan,
				nullable(c.Pp), nullable(c.Ppk), nullable(c.Cp), nullable(c.Cpk),
				c.TolVariantsLSL, c.TolVariantsUSL, c.TolInconsistent); err != nil {
				return fmt.Errorf("insert capability for step %s: %w", c.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("failed to replace capability", err, tier, asof)
	}
	return nil
}

// Capability returns the stored capability rows of (tier, asof) in step order.
func (s *Store) Capability(ctx context.Context, tier, asof string) ([]spc.Capability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_key, n, n_mr, mean, std_overall, mrbar, sigma_within, lsl, usl, tol_span,
			pp, ppk, cp, cpk, tol_variants_lsl, tol_variants_usl, tol_inconsistent
		FROM capability WHERE tier = ? AND asof = ? ORDER BY pos
	`, tier, asof)
	if err != nil {
		return nil, storageErr("failed to query capability", err, tier, asof)
	}
	defer rows.Close()

	out := []spc.Capability{}
	for rows.Next() {
		var c spc.Capability
		var std, mrbar, sw, pp, ppk, cp, cpk sql.NullFloat64
		if err := rows.Scan(&c.Key, &c.N, &c.NMR, &c.Mean, &std, &mrbar, &sw, &c.LSL, &c.USL, &c.TolSpan,
			&pp, &ppk, &cp, &cpk, &c.TolVariantsLSL, &c.TolVariantsUSL, &c.TolInconsistent); err != nil {
			return nil, storageErr("failed to scan capability", err, tier, asof)
		}
		c.StdOverall, c.MRBar, c.SigmaWithin = optional(std), optional(mrbar), optional(sw)
		c.Pp, c.Ppk, c.Cp, c.Cpk = optional(pp), optional(ppk), optional(cp), optional(cpk)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read capability", err, tier, asof)
	}
	return out, nil
}

func nullable(f spc.Float) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.V, Valid: f.Valid}
}

func optional(n sql.NullFloat64) spc.Float {
	if !n.Valid {
		return spc.None()
	}
	return spc.Some(n.Float64)
}

func nullTime(ts time.Time) sql.NullString {
	if ts.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: ts.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, ns.String)
}

func storageErr(msg string, err error, tier, asof string) error {
	return apperrors.NewStorageError(msg, err).WithContext("tier", tier).WithContext("asof", asof)
}
