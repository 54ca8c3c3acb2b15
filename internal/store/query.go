package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/hysim/internal/trace"
)

// EventQuery selects discrete-phase records of one run. Zero fields do not
// filter.
type EventQuery struct {
	RunID string
	Kind  trace.EventKind
	Actor string

	// From and To bound the event time, both inclusive.
	From *float64
	To   *float64

	// Limit caps the number of rows; zero means no cap.
	Limit int
}

// predicate is one WHERE fragment. Values are always bound as parameters.
type predicate interface {
	sql() (string, []any)
}

type compare struct {
	column string
	op     string
	value  any
}

func (c compare) sql() (string, []any) {
	return fmt.Sprintf("%s %s ?", c.column, c.op), []any{c.value}
}

type and []predicate

func (a and) sql() (string, []any) {
	if len(a) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(a))
	var args []any
	for _, p := range a {
		s, pa := p.sql()
		parts = append(parts, s)
		args = append(args, pa...)
	}
	return strings.Join(parts, " AND "), args
}

func (q EventQuery) filter() predicate {
	preds := and{compare{"run_id", "=", q.RunID}}
	if q.Kind != "" {
		preds = append(preds, compare{"kind", "=", string(q.Kind)})
	}
	if q.Actor != "" {
		preds = append(preds, compare{"actor", "=", q.Actor})
	}
	if q.From != nil {
		preds = append(preds, compare{"time", ">=", *q.From})
	}
	if q.To != nil {
		preds = append(preds, compare{"time", "<=", *q.To})
	}
	return preds
}

// compile renders the query as parameterized SQL. Rows always come back in
// seq order.
func (q EventQuery) compile() (string, []any) {
	where, args := q.filter().sql()
	query := "SELECT seq, time, kind, actor, value FROM events WHERE " + where + " ORDER BY seq ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return query, args
}

// QueryEvents returns the events matching q in seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]trace.EventRecord, error) {
	if q.From != nil && q.To != nil && *q.From > *q.To {
		return nil, fmt.Errorf("event query: from %g is after to %g", *q.From, *q.To)
	}
	query, args := q.compile()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.EventRecord{}
	for rows.Next() {
		var (
			r trace.EventRecord
			k string
		)
		if err := rows.Scan(&r.Seq, &r.Time, &k, &r.Actor, &r.Value); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Kind = trace.EventKind(k)
		events = append(events, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
