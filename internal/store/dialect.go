package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// dialect renders the JSON array functions of one database engine.
// Every fragment references the machine row as m and the unwound element as h.
type dialect interface {
	// unwind returns the FROM clause producing one row per array element.
	unwind(column string) string
	isObject() string
	ordinal() string
	entry() string
	text(field string) string
	flag(field string) string
	timestamp(field string) string
	timeParam() string
	timeArg(t time.Time) any
	firstElement(column string) string
}

func dialectFor(db *gorm.DB) dialect {
	if db.Dialector.Name() == "postgres" {
		return postgresDialect{}
	}
	return sqliteDialect{}
}

type sqliteDialect struct{}

func (sqliteDialect) unwind(column string) string {
	return fmt.Sprintf("machines m, json_each(m.%s) h", column)
}

func (sqliteDialect) isObject() string { return "h.type = 'object'" }
func (sqliteDialect) ordinal() string  { return "h.key" }
func (sqliteDialect) entry() string    { return "h.value" }

func (sqliteDialect) text(field string) string {
	return fmt.Sprintf("json_extract(h.value, '$.%s')", field)
}

// json_extract yields 1/0 for JSON booleans, which match bound Go bools.
func (sqliteDialect) flag(field string) string {
	return fmt.Sprintf("json_extract(h.value, '$.%s')", field)
}

func (sqliteDialect) timestamp(field string) string {
	return fmt.Sprintf("julianday(json_extract(h.value, '$.%s'))", field)
}

func (sqliteDialect) timeParam() string { return "julianday(?)" }

func (sqliteDialect) timeArg(t time.Time) any {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (sqliteDialect) firstElement(column string) string {
	return fmt.Sprintf("json_extract(m.%s, '$[0]')", column)
}

type postgresDialect struct{}

func (postgresDialect) unwind(column string) string {
	return fmt.Sprintf(
		"machines m CROSS JOIN LATERAL jsonb_array_elements(CASE jsonb_typeof(m.%[1]s) WHEN 'array' THEN m.%[1]s ELSE '[]'::jsonb END) WITH ORDINALITY AS h(entry, ord)",
		column)
}

func (postgresDialect) isObject() string { return "jsonb_typeof(h.entry) = 'object'" }
func (postgresDialect) ordinal() string  { return "h.ord" }
func (postgresDialect) entry() string    { return "CAST(h.entry AS text)" }

func (postgresDialect) text(field string) string {
	return fmt.Sprintf("(h.entry->>'%s')", field)
}

func (postgresDialect) flag(field string) string {
	return fmt.Sprintf("CAST(h.entry->>'%s' AS boolean)", field)
}

func (postgresDialect) timestamp(field string) string {
	return fmt.Sprintf("CAST(h.entry->>'%s' AS timestamptz)", field)
}

func (postgresDialect) timeParam() string { return "CAST(? AS timestamptz)" }

func (postgresDialect) timeArg(t time.Time) any { return t.UTC() }

func (postgresDialect) firstElement(column string) string {
	return fmt.Sprintf("CAST(m.%s->0 AS text)", column)
}
