package biz

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/id"
)

// ScriptService stores editor scripts. Records live in the store and the
// code lives in a file referenced by the record.
type ScriptService struct {
	store store.Factory
	dir   string
	ids   id.Generator
}

// NewScriptService creates a new ScriptService writing new scripts under dir.
func NewScriptService(s store.Factory, dir string, ids id.Generator) *ScriptService {
	if ids == nil {
		ids = id.NewULIDGenerator()
	}
	return &ScriptService{store: s, dir: dir, ids: ids}
}

// List returns all saved scripts without their code.
func (s *ScriptService) List(ctx context.Context) ([]*model.Script, error) {
	return s.store.Scripts().List(ctx)
}

// Open returns a script and its code.
func (s *ScriptService) Open(ctx context.Context, scriptID string) (*model.ScriptContent, error) {
	sc, err := s.get(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(sc.Path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.ErrScriptNoEntity.WithMessagef("script file %s is missing", sc.Path)
		}
		return nil, errors.ErrInternal.WithCause(err)
	}
	return &model.ScriptContent{Script: *sc, Code: string(code)}, nil
}

// Save writes the script code and upserts its record.
func (s *ScriptService) Save(ctx context.Context, in *model.ScriptContent) (*model.Script, error) {
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, errors.ErrScriptInvalidInput.WithMessage("script name is required")
	}

	sc := in.Script
	if sc.ID == "" {
		sc.ID = s.ids.Generate()
	}
	if sc.Path == "" {
		sc.Path = filepath.Join(s.dir, sc.ID+".js")
	}
	sc.UpdatedAt = time.Now().UnixMilli()

	if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	if err := os.WriteFile(sc.Path, []byte(in.Code), 0o600); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	if err := s.store.Scripts().Put(ctx, &sc); err != nil {
		return nil, err
	}

	logger.Infow("Saved script", "script_id", sc.ID, "path", sc.Path)
	return &sc, nil
}

// Delete removes the record and the file it points at.
func (s *ScriptService) Delete(ctx context.Context, scriptID string) error {
	sc, err := s.get(ctx, scriptID)
	if err != nil {
		return err
	}
	if err := os.Remove(sc.Path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.ErrInternal.WithCause(err)
	}
	return s.store.Scripts().Delete(ctx, scriptID)
}

func (s *ScriptService) get(ctx context.Context, scriptID string) (*model.Script, error) {
	if scriptID == "" {
		return nil, errors.ErrScriptInvalidInput.WithMessage("script id is required")
	}
	sc, err := s.store.Scripts().Get(ctx, scriptID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrScriptNoEntity.WithMessagef("no script %q", scriptID)
		}
		return nil, err
	}
	return sc, nil
}
