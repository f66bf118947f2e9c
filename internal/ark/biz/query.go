package biz

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

// QueryRequest addresses documents of one collection. Filter and Update are
// BSON documents, base64 encoded on the wire.
type QueryRequest struct {
	ConnectionID string   `json:"connectionId"`
	Database     string   `json:"database"`
	Collection   string   `json:"collection"`
	Filter       bson.Raw `json:"filter"`
	Update       bson.Raw `json:"update,omitempty"`
}

func (r *QueryRequest) validate(update bool) error {
	if r.Database == "" || r.Collection == "" {
		return errors.ErrInvalidParam.WithMessage("database and collection are required")
	}
	if err := r.Filter.Validate(); err != nil {
		return errors.ErrInvalidParam.WithMessage("filter is not a valid document").WithCause(err)
	}
	if update {
		if err := r.Update.Validate(); err != nil {
			return errors.ErrInvalidParam.WithMessage("update is not a valid document").WithCause(err)
		}
	}
	return nil
}

// QueryService applies per-document edits from the result grid.
type QueryService struct {
	conns *ConnectionService
}

// NewQueryService creates a new QueryService.
func NewQueryService(conns *ConnectionService) *QueryService {
	return &QueryService{conns: conns}
}

// UpdateOne updates the first matching document.
func (s *QueryService) UpdateOne(ctx context.Context, req *QueryRequest) (*model.UpdateResult, error) {
	return s.update(ctx, req, false)
}

// UpdateMany updates every matching document.
func (s *QueryService) UpdateMany(ctx context.Context, req *QueryRequest) (*model.UpdateResult, error) {
	return s.update(ctx, req, true)
}

// DeleteOne deletes the first matching document.
func (s *QueryService) DeleteOne(ctx context.Context, req *QueryRequest) (*model.DeleteResult, error) {
	return s.delete(ctx, req, false)
}

// DeleteMany deletes every matching document.
func (s *QueryService) DeleteMany(ctx context.Context, req *QueryRequest) (*model.DeleteResult, error) {
	return s.delete(ctx, req, true)
}

func (s *QueryService) update(ctx context.Context, req *QueryRequest, many bool) (*model.UpdateResult, error) {
	if err := req.validate(true); err != nil {
		return nil, err
	}
	e, err := s.conns.Live(req.ConnectionID)
	if err != nil {
		return nil, err
	}
	res, err := e.Client.Update(ctx, req.Database, req.Collection, req.Filter, req.Update, many)
	if err != nil {
		return nil, databaseError(err)
	}
	return res, nil
}

func (s *QueryService) delete(ctx context.Context, req *QueryRequest, many bool) (*model.DeleteResult, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	e, err := s.conns.Live(req.ConnectionID)
	if err != nil {
		return nil, err
	}
	res, err := e.Client.Delete(ctx, req.Database, req.Collection, req.Filter, many)
	if err != nil {
		return nil, databaseError(err)
	}
	return res, nil
}
