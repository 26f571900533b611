package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"modernc.org/sqlite"

	"github.com/crimson-sun/nocdash/internal/model"
)

// TimestampLayout matches the format rows have always been written with.
const TimestampLayout = "2006-01-02 15:04:05"

// Filter narrows List and Count. Zero values match everything.
type Filter struct {
	Text    string        // substring of the report text, compared case-folded
	Verdict model.Verdict // exact verdict
	Profile string        // exact profile
	Limit   int           // 0 = no limit
}

var metricColumns = func() []string {
	fields := model.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}()

// Insert appends a report and returns its new id. A zero CreatedAt is set
// to the current time. Existing rows are never touched.
func (s *Store) Insert(ctx context.Context, r model.Report) (int64, error) {
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	cols := append([]string{"timestamp"}, metricColumns...)
	cols = append(cols, "status", "report_text", "feedback", "profile")

	args := make([]any, 0, len(cols))
	args = append(args, created.Format(TimestampLayout))
	for _, name := range metricColumns {
		if v, ok := r.Reading.Get(name); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	args = append(args, string(r.Verdict), r.Body, nullString(r.Feedback), nullIfEmpty(r.Profile))

	query := "INSERT INTO reports (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert", err)
	}
	return id, nil
}

// List returns the matching reports in insertion order.
func (s *Store) List(ctx context.Context, f Filter) ([]model.Report, error) {
	where, args := f.clause()
	query := "SELECT id, timestamp, " + strings.Join(metricColumns, ", ") +
		", status, report_text, feedback, profile FROM reports" + where + " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, wrap("list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", err)
	}
	return out, nil
}

// Get returns one report or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (model.Report, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, timestamp, "+strings.Join(metricColumns, ", ")+
		", status, report_text, feedback, profile FROM reports WHERE id = ?", id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, ErrNotFound
	}
	if err != nil {
		return model.Report{}, wrap("get", err)
	}
	return r, nil
}

// Count returns the number of matching reports.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.clause()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// Delete removes the report with the given id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	return wrap("delete", err)
}

func (f Filter) clause() (string, []any) {
	var conds []string
	var args []any
	if text := fold(strings.TrimSpace(f.Text)); text != "" {
		conds = append(conds, `fold(report_text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(text)+"%")
	}
	if f.Verdict != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Verdict))
	}
	if f.Profile != "" {
		conds = append(conds, "profile = ?")
		args = append(args, f.Profile)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// fold normalizes s for caseless comparison, beyond the ASCII-only folding
// SQLite's LIKE does.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// foldFunc is fold exposed to SQL.
func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return fold(v), nil
	case []byte:
		return fold(string(v)), nil
	default:
		return v, nil
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (model.Report, error) {
	var (
		id       int64
		ts       sql.NullString
		status   sql.NullString
		body     sql.NullString
		feedback sql.NullString
		profile  sql.NullString
	)
	metrics := make([]sql.NullFloat64, len(metricColumns))

	dest := []any{&id, &ts}
	for i := range metrics {
		dest = append(dest, &metrics[i])
	}
	dest = append(dest, &status, &body, &feedback, &profile)
	if err := sc.Scan(dest...); err != nil {
		return model.Report{}, err
	}

	r := model.Report{
		ID:      id,
		Reading: make(model.Reading),
		Verdict: model.Verdict(status.String),
		Body:    body.String,
		Profile: profile.String,
	}
	if ts.Valid {
		if t, err := time.ParseInLocation(TimestampLayout, ts.String, time.Local); err == nil {
			r.CreatedAt = t
		}
	}
	for i, m := range metrics {
		if m.Valid {
			r.Reading[metricColumns[i]] = m.Float64
		}
	}
	if feedback.Valid {
		fb := feedback.String
		r.Feedback = &fb
	}
	return r, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
