package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is the row shape for the Postgres adapter: one JSONB document
// per (collection, doc_id).
type Document struct {
	Collection string `gorm:"primaryKey;type:varchar(64)"`
	DocID      string `gorm:"primaryKey;column:doc_id;type:varchar(128)"`
	Data       []byte `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time
}

// PostgresStore implements Store on top of Postgres, one JSONB row per
// document. BatchCommit runs inside a single transaction, which is stronger
// than the contract requires but free here.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, collection, id string, out any) error {
	var doc Document
	err := p.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(doc.Data, out)
}

func (p *PostgresStore) Query(ctx context.Context, collection string, out any, filters ...Filter) error {
	q := p.db.WithContext(ctx).Model(&Document{}).Where("collection = ?", collection)
	for _, f := range filters {
		q = q.Where("data->>? = ?", f.Field, fmt.Sprint(f.Value))
	}

	var docs []Document
	if err := q.Find(&docs).Error; err != nil {
		return err
	}

	raw := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		raw = append(raw, json.RawMessage(d.Data))
	}
	// Decode through one JSON array so out keeps its slice element type.
	joined, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(joined, out)
}

func (p *PostgresStore) Set(ctx context.Context, collection, id string, v any) error {
	return p.set(p.db.WithContext(ctx), collection, id, v)
}

func (p *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return p.update(p.db.WithContext(ctx), collection, id, fields)
}

func (p *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	return p.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&Document{}).Error
}

func (p *PostgresStore) BatchCommit(ctx context.Context, ops []Op) error {
	if len(ops) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch op.Kind {
			case OpSet:
				if err := p.set(tx, op.Collection, op.ID, op.Value); err != nil {
					return err
				}
			case OpUpdate:
				if err := p.update(tx, op.Collection, op.ID, op.Fields); err != nil {
					return err
				}
			case OpDelete:
				if err := tx.Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
					Delete(&Document{}).Error; err != nil {
					return err
				}
			default:
				return fmt.Errorf("store: unknown op kind %q", op.Kind)
			}
		}
		return nil
	})
}

func (p *PostgresStore) set(tx *gorm.DB, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	doc := Document{Collection: collection, DocID: id, Data: data, UpdatedAt: time.Now()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&doc).Error
}

// update is read-modify-write; last write wins at the document level, which
// matches the consistency the engines are designed for.
func (p *PostgresStore) update(tx *gorm.DB, collection, id string, fields map[string]any) error {
	var doc Document
	err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var merged map[string]any
	if err := json.Unmarshal(doc.Data, &merged); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	return tx.Model(&Document{}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Updates(map[string]any{"data": data, "updated_at": time.Now()}).Error
}
