package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/model"
)

const maxTypeNameLength = 64

// Catalog is the crowdsourced event-type catalog. Types are unique per
// normalized name and language.
type Catalog struct {
	db              *gorm.DB
	defaultLanguage string
}

func NewCatalog(db *gorm.DB, defaultLanguage string) *Catalog {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Catalog{db: db, defaultLanguage: defaultLanguage}
}

// NormalizeTypeName folds case and collapses whitespace.
func NormalizeTypeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (c *Catalog) language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return c.defaultLanguage
	}
	return lang
}

// ResolveOrCreateType returns the type registered under name, creating it on
// first use. Concurrent creators converge on the same row.
func (c *Catalog) ResolveOrCreateType(ctx context.Context, name, language string, system bool) (model.EventType, error) {
	display := strings.Join(strings.Fields(name), " ")
	if display == "" {
		return model.EventType{}, &machine.ValidationError{Field: "typeName", Reason: "must not be empty"}
	}
	if len(display) > maxTypeNameLength {
		return model.EventType{}, &machine.ValidationError{Field: "typeName", Reason: "must be at most 64 characters"}
	}
	lang := c.language(language)
	normalized := NormalizeTypeName(display)

	candidate := model.EventType{
		ID:             uuid.NewString(),
		Name:           display,
		NormalizedName: normalized,
		Language:       lang,
		IsSystem:       system,
		CreatedAt:      time.Now().UTC(),
	}
	db := c.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_name"}, {Name: "language"}},
		DoNothing: true,
	}).Create(&candidate).Error; err != nil {
		return model.EventType{}, &machine.PersistenceError{Op: "create event type", Err: err}
	}

	var existing model.EventType
	if err := db.Where("normalized_name = ? AND language = ?", normalized, lang).Take(&existing).Error; err != nil {
		return model.EventType{}, &machine.PersistenceError{Op: "load event type", Err: err}
	}
	return existing, nil
}

func (c *Catalog) GetType(ctx context.Context, id string) (model.EventType, error) {
	var t model.EventType
	err := c.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.EventType{}, &machine.NotFoundError{Kind: "event type", ID: id}
	}
	if err != nil {
		return model.EventType{}, &machine.PersistenceError{Op: "load event type", Err: err}
	}
	return t, nil
}

// IncrementUsage bumps the usage counter used to rank types in pickers.
func (c *Catalog) IncrementUsage(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Model(&model.EventType{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return &machine.PersistenceError{Op: "increment event type usage", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &machine.NotFoundError{Kind: "event type", ID: id}
	}
	return nil
}

// ListTypes returns the types of a language, most used first, optionally
// narrowed by a name prefix.
func (c *Catalog) ListTypes(ctx context.Context, language, search string, limit int) ([]model.EventType, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := c.db.WithContext(ctx).Where("language = ?", c.language(language))
	if term := NormalizeTypeName(search); term != "" {
		q = q.Where(`normalized_name LIKE ? ESCAPE '\'`, escapeLike(term)+"%")
	}

	var types []model.EventType
	if err := q.Order("usage_count DESC").Order("normalized_name ASC").Limit(limit).Find(&types).Error; err != nil {
		return nil, &machine.PersistenceError{Op: "list event types", Err: err}
	}
	return types, nil
}
