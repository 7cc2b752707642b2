// Package action executes network actions: single backend calls whose
// lifecycle (requested, received, failed) is recorded in the store.
package action

import (
	"context"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// Mapper turns a successful response into the entities to merge.
type Mapper func(resp *api.Response) ([]models.Entity, error)

// AfterFunc runs once the received transition has been applied.
type AfterFunc func(ctx context.Context, items []models.Entity) error

// Envelope describes one network action.
type Envelope struct {
	Key     store.SliceKey
	Request api.Request
	// Decode maps the response body. Nil decodes nothing, which suits deletes
	// whose removed entity is supplied through Items.
	Decode Mapper
	// Items are merged instead of the decoded entities when Decode is nil.
	Items []models.Entity
	Mode  store.MergeMode
	// ErrorMessage is posted as a notice when the action fails.
	ErrorMessage string
	After        AfterFunc
	// Recover turns selected failures into a successful, possibly empty,
	// result. Returning false keeps the failure.
	Recover func(err error) ([]models.Entity, bool)
}

// List decodes a JSON array of T.
func List[T models.Entity]() Mapper {
	return func(resp *api.Response) ([]models.Entity, error) {
		if resp.IsNull() {
			return nil, nil
		}
		items, err := api.Decode[[]T](resp)
		if err != nil {
			return nil, err
		}
		return models.AsEntities(items), nil
	}
}

// One decodes a single JSON object of T.
func One[T models.Entity]() Mapper {
	return func(resp *api.Response) ([]models.Entity, error) {
		item, err := api.Decode[T](resp)
		if err != nil {
			return nil, err
		}
		return []models.Entity{item}, nil
	}
}

// Transform decodes the body into R and maps it with fn.
func Transform[R any](fn func(R) ([]models.Entity, error)) Mapper {
	return func(resp *api.Response) ([]models.Entity, error) {
		raw, err := api.Decode[R](resp)
		if err != nil {
			return nil, err
		}
		items, err := fn(raw)
		if err != nil {
			return nil, errors.MalformedResponse(resp.URL, err)
		}
		return items, nil
	}
}
