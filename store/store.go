// Package store holds the bulk write primitives every ingestion stage writes
// through. All three commit per record, a failure halfway through a batch
// leaves the earlier records in place.
package store

import (
	"context"
	"encoding/json"
	"strings"

	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity is a row that can be located by its natural key and carries an
// opaque json payload.
type Entity interface {
	KeyConditions() map[string]interface{}
	Payload() datatypes.JSON
	SetPayload(datatypes.JSON)
}

type entityPtr[T any] interface {
	*T
	Entity
}

// session detaches writes from ctx cancellation, a stage is never interrupted
// halfway through a write.
func session(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(context.WithoutCancel(ctx))
}

// BulkCreate inserts each record on its own. A record violating an integrity
// constraint is dropped and the batch carries on, any other error stops the
// batch. Returns the number of rows created.
func BulkCreate[T any, PT entityPtr[T]](ctx context.Context, db *gorm.DB, objs []T) (int, error) {
	tx := session(ctx, db)
	created := 0
	for i := range objs {
		obj := PT(&objs[i])
		err := tx.Create(obj).Error
		if err == nil {
			created++
			continue
		}
		if IsIntegrityViolation(err) {
			Logger.Log.WithField("key", obj.KeyConditions()).
				Debugf("skip %T violating integrity constraint: %v", obj, err)
			continue
		}
		return created, errors.Wrapf(err, "fail to create %T with key %v", obj, obj.KeyConditions())
	}
	return created, nil
}

// BulkUpdate enriches rows created by an earlier stage. Non zero fields of
// each record overwrite the stored row, payloads are merged key by key. A
// record without a stored row is an error wrapping gorm.ErrRecordNotFound.
func BulkUpdate[T any, PT entityPtr[T]](ctx context.Context, db *gorm.DB, objs []T) error {
	tx := session(ctx, db)
	for i := range objs {
		obj := PT(&objs[i])
		var existing T
		if err := tx.Where(obj.KeyConditions()).Take(&existing).Error; err != nil {
			return errors.Wrapf(err, "fail to load %T with key %v", obj, obj.KeyConditions())
		}
		stored := PT(&existing)
		payload, err := MergePayload(stored.Payload(), obj.Payload())
		if err != nil {
			return err
		}
		if err := copier.CopyWithOption(stored, obj, copier.Option{IgnoreEmpty: true}); err != nil {
			return errors.Wrapf(err, "fail to merge %T with key %v", obj, obj.KeyConditions())
		}
		stored.SetPayload(payload)
		if err := tx.Save(stored).Error; err != nil {
			return errors.Wrapf(err, "fail to update %T with key %v", obj, obj.KeyConditions())
		}
	}
	return nil
}

// BulkUpsert inserts records not stored yet. For stored ones only the payload
// is merged, every other column keeps its first observed value.
func BulkUpsert[T any, PT entityPtr[T]](ctx context.Context, db *gorm.DB, objs []T) error {
	tx := session(ctx, db)
	for i := range objs {
		obj := PT(&objs[i])
		var existing T
		err := tx.Where(obj.KeyConditions()).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(obj).Error; err != nil {
				return errors.Wrapf(err, "fail to create %T with key %v", obj, obj.KeyConditions())
			}
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "fail to load %T with key %v", obj, obj.KeyConditions())
		}
		stored := PT(&existing)
		payload, err := MergePayload(stored.Payload(), obj.Payload())
		if err != nil {
			return err
		}
		stored.SetPayload(payload)
		if err := tx.Save(stored).Error; err != nil {
			return errors.Wrapf(err, "fail to update %T with key %v", obj, obj.KeyConditions())
		}
	}
	return nil
}

// GetOrCreate loads the row matching conds into obj, creating obj when there is
// none. Returns whether a row was created.
func GetOrCreate[T any](ctx context.Context, db *gorm.DB, obj *T, conds map[string]interface{}) (bool, error) {
	tx := session(ctx, db)
	var existing T
	err := tx.Where(conds).Take(&existing).Error
	if err == nil {
		*obj = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, errors.Wrapf(err, "fail to load %T with %v", obj, conds)
	}
	if err := tx.Create(obj).Error; err != nil {
		if !IsIntegrityViolation(err) {
			return false, errors.Wrapf(err, "fail to create %T with %v", obj, conds)
		}
		// Created concurrently by someone else.
		if err := tx.Where(conds).Take(obj).Error; err != nil {
			return false, errors.Wrapf(err, "fail to load %T with %v", obj, conds)
		}
		return false, nil
	}
	return true, nil
}

// MergePayload returns the shallow key union of two json objects, keys of next
// win. When either side is not a json object next replaces prev.
func MergePayload(prev, next datatypes.JSON) (datatypes.JSON, error) {
	if len(next) == 0 {
		return prev, nil
	}
	if len(prev) == 0 {
		return next, nil
	}
	var merged, update map[string]interface{}
	if json.Unmarshal(prev, &merged) != nil || json.Unmarshal(next, &update) != nil || merged == nil {
		return next, nil
	}
	for k, v := range update {
		merged[k] = v
	}
	res, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "fail to marshal merged payload")
	}
	return res, nil
}

// IsIntegrityViolation reports whether err is a uniqueness, foreign key, not
// null or check constraint failure.
func IsIntegrityViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE class 23 is integrity_constraint_violation.
		return strings.HasPrefix(pgErr.Code, "23")
	}
	// sqlite reports e.g. "UNIQUE constraint failed: tweets.id".
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}
