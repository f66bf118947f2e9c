package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/utils/json"
)

// collection stores values of T as JSON documents under one collection name.
type collection[T any] struct {
	db   *gorm.DB
	name string
}

func newCollection[T any](db *gorm.DB, name string) collection[T] {
	return collection[T]{db: db, name: name}
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	var rec model.Record
	err := c.db.WithContext(ctx).
		Where("collection = ? AND id = ?", c.name, id).
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound.WithMessagef("%s/%s not found", c.name, id)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}

	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &v, nil
}

func (c collection[T]) list(ctx context.Context) ([]*T, error) {
	var recs []model.Record
	err := c.db.WithContext(ctx).
		Where("collection = ?", c.name).
		Order("created_at, id").
		Find(&recs).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, errors.ErrDatabase.WithCause(err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// put upserts the document, keeping the original creation time.
func (c collection[T]) put(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}

	rec := model.Record{Collection: c.name, ID: id, Data: data}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// delete removes the document. Deleting a missing id is not an error.
func (c collection[T]) delete(ctx context.Context, id string) error {
	err := c.db.WithContext(ctx).
		Where("collection = ? AND id = ?", c.name, id).
		Delete(&model.Record{}).Error
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}
