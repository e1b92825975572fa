package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
)

// Collection describes one embedded history array and what may be filtered on.
type Collection struct {
	Name         string
	Column       string
	TimeField    string
	SearchFields []string
	TextFields   []string
	FlagFields   []string
}

var (
	QuickCheckCollection = Collection{
		Name:         "quickChecks",
		Column:       "quick_checks",
		TimeField:    "date",
		SearchFields: []string{"responsibleName", "observations"},
		TextFields:   []string{"result", "executorId", "responsibleWorkerId"},
	}
	EventCollection = Collection{
		Name:         "eventsHistory",
		Column:       "events_history",
		TimeField:    "date",
		SearchFields: []string{"title", "description"},
		TextFields:   []string{"typeId", "createdBy"},
		FlagFields:   []string{"isSystemGenerated"},
	}
)

// HistoryFilter narrows a history query. All set conditions must hold.
type HistoryFilter struct {
	Equals map[string]string
	Flags  map[string]bool
	From   *time.Time
	To     *time.Time
	Search string
}

// Page is one slice of a history together with the size of the whole
// filtered result. Both come from the same statement.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

func (s *gormStore) QueryQuickChecks(ctx context.Context, machineID string, f HistoryFilter, page, limit int) (Page[machine.QuickCheckRecord], error) {
	return queryHistory[machine.QuickCheckRecord](ctx, s, QuickCheckCollection, machineID, f, page, limit)
}

func (s *gormStore) QueryEvents(ctx context.Context, machineID string, f HistoryFilter, page, limit int) (Page[machine.Event], error) {
	return queryHistory[machine.Event](ctx, s, EventCollection, machineID, f, page, limit)
}

// normalizePage clamps the requested window.
func (s *gormStore) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	// The offset must stay representable in the statement.
	if maxPage := math.MaxInt32 / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func queryHistory[T any](ctx context.Context, s *gormStore, c Collection, machineID string, f HistoryFilter, page, limit int) (Page[T], error) {
	start := time.Now()
	defer func() {
		metrics.HistoryQueryDuration.WithLabelValues(c.Name).Observe(time.Since(start).Seconds())
	}()

	page, limit = s.normalizePage(page, limit)
	query, args, err := buildHistoryQuery(s.dialect, c, machineID, f, page, limit)
	if err != nil {
		return Page[T]{}, err
	}

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return Page[T]{}, &machine.PersistenceError{Op: "query " + c.Name, Err: err}
	}
	defer rows.Close()

	result := Page[T]{Items: []T{}, Page: page, Limit: limit}
	var found int64
	for rows.Next() {
		var entry sql.NullString
		if err := rows.Scan(&result.Total, &found, &entry); err != nil {
			return Page[T]{}, &machine.PersistenceError{Op: "scan " + c.Name, Err: err}
		}
		if !entry.Valid {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(entry.String), &item); err != nil {
			return Page[T]{}, &machine.PersistenceError{Op: "decode " + c.Name, Err: err}
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Page[T]{}, &machine.PersistenceError{Op: "query " + c.Name, Err: err}
	}
	if found == 0 {
		return Page[T]{}, &machine.NotFoundError{Kind: "machine", ID: machineID}
	}

	result.TotalPages = int((result.Total + int64(limit) - 1) / int64(limit))
	return result, nil
}

// buildHistoryQuery renders the unwind/filter/sort/paginate statement. The
// total, the machine existence check and the page rows are produced by one
// statement so they always describe the same snapshot.
func buildHistoryQuery(d dialect, c Collection, machineID string, f HistoryFilter, page, limit int) (string, []any, error) {
	where := []string{"m.id = ?", d.isObject()}
	args := []any{machineID}

	for _, field := range sortedKeys(f.Equals) {
		if !contains(c.TextFields, field) {
			return "", nil, &machine.ValidationError{Field: field, Reason: "is not filterable on " + c.Name}
		}
		where = append(where, d.text(field)+" = ?")
		args = append(args, f.Equals[field])
	}
	for _, field := range sortedKeys(f.Flags) {
		if !contains(c.FlagFields, field) {
			return "", nil, &machine.ValidationError{Field: field, Reason: "is not filterable on " + c.Name}
		}
		where = append(where, d.flag(field)+" = ?")
		args = append(args, f.Flags[field])
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return "", nil, &machine.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if f.From != nil {
		where = append(where, d.timestamp(c.TimeField)+" >= "+d.timeParam())
		args = append(args, d.timeArg(*f.From))
	}
	if f.To != nil {
		where = append(where, d.timestamp(c.TimeField)+" <= "+d.timeParam())
		args = append(args, d.timeArg(*f.To))
	}
	if term := strings.TrimSpace(f.Search); term != "" && len(c.SearchFields) > 0 {
		parts := make([]string, len(c.SearchFields))
		for i, field := range c.SearchFields {
			parts[i] = "coalesce(" + d.text(field) + ", '')"
		}
		where = append(where, "lower("+strings.Join(parts, " || ' ' || ")+`) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
	}

	query := fmt.Sprintf(`WITH history_rows AS (
	SELECT %s AS ord, %s AS entry, %s AS sort_key
	FROM %s
	WHERE %s
)
SELECT t.total, t.found, p.entry
FROM (SELECT COUNT(*) AS total, (SELECT COUNT(*) FROM machines WHERE id = ?) AS found FROM history_rows) t
LEFT JOIN (SELECT ord, entry, sort_key FROM history_rows ORDER BY sort_key DESC, ord ASC LIMIT ? OFFSET ?) p ON 1 = 1
ORDER BY p.sort_key DESC, p.ord ASC`,
		d.ordinal(), d.entry(), d.timestamp(c.TimeField),
		d.unwind(c.Column),
		strings.Join(where, "\n\t  AND "))

	args = append(args, machineID, limit, (page-1)*limit)
	return query, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
