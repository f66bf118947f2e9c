package handler

import (
	"context"

	"github.com/kart-io/ark/internal/ark/biz"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

// Services are the backends of the command catalog.
type Services struct {
	Connections *biz.ConnectionService
	Databases   *biz.DatabaseService
	Queries     *biz.QueryService
	Shells      *biz.ShellService
	Scripts     *biz.ScriptService
	Settings    *biz.SettingsService
}

// IDRequest addresses a connection or script by id.
type IDRequest struct {
	ID string `json:"id"`
}

func (r *IDRequest) require() error {
	if r.ID == "" {
		return errors.ErrInvalidParam.WithMessage("id is required")
	}
	return nil
}

// ConvertRequest is the payload of the URI conversion commands.
type ConvertRequest struct {
	URI        string                  `json:"uri,omitempty"`
	Connection *model.StoredConnection `json:"connection,omitempty"`
}

// SessionRequest addresses a shell session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// KeyResponse carries a generated encryption key.
type KeyResponse struct {
	Key string `json:"key"`
}

// URIResponse carries a connection string.
type URIResponse struct {
	URI string `json:"uri"`
}

// PasswordResponse carries a decrypted password.
type PasswordResponse struct {
	Password string `json:"password"`
}

// SessionResponse carries a new session id.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// PathResponse carries the file written by an export.
type PathResponse struct {
	Path string `json:"path"`
}

type empty struct{}

// New returns a dispatcher with the full command catalog registered.
func New(svc *Services) *Dispatcher {
	d := NewDispatcher()
	registerConnection(d, svc.Connections)
	registerDatabase(d, svc.Databases)
	registerQuery(d, svc.Queries)
	registerShell(d, svc.Shells)
	registerScript(d, svc.Scripts)
	registerSettings(d, svc.Settings)
	return d
}

func byID[Resp any](fn func(ctx context.Context, id string) (Resp, error)) HandlerFunc {
	return typed(func(ctx context.Context, req *IDRequest) (Resp, error) {
		if err := req.require(); err != nil {
			var zero Resp
			return zero, err
		}
		return fn(ctx, req.ID)
	})
}

func byIDNoResult(fn func(ctx context.Context, id string) error) HandlerFunc {
	return noResult(func(ctx context.Context, req *IDRequest) error {
		if err := req.require(); err != nil {
			return err
		}
		return fn(ctx, req.ID)
	})
}

func registerConnection(d *Dispatcher, s *biz.ConnectionService) {
	cmd := func(action string) Command { return Command{Library: LibraryConnection, Action: action} }

	d.MustRegister(cmd("list"), typed(func(ctx context.Context, _ *empty) ([]*model.StoredConnection, error) {
		return s.List(ctx)
	}))
	d.MustRegister(cmd("load"), byID(s.Load))
	d.MustRegister(cmd("save"), typed(s.Save))
	d.MustRegister(cmd("delete"), byIDNoResult(s.Delete))
	d.MustRegister(cmd("connect"), byID(s.Connect))
	d.MustRegister(cmd("disconnect"), byIDNoResult(s.Disconnect))
	d.MustRegister(cmd("test"), typed(func(ctx context.Context, req *registry.SaveRequest) (*model.TestResult, error) {
		return s.Test(ctx, req), nil
	}))
	d.MustRegister(cmd("listDatabases"), byID(s.ListDatabases))
	d.MustRegister(cmd("info"), byID(s.Info))
	d.MustRegister(cmd("decryptPassword"), byID(func(ctx context.Context, id string) (*PasswordResponse, error) {
		p, err := s.DecryptPassword(ctx, id)
		if err != nil {
			return nil, err
		}
		return &PasswordResponse{Password: p}, nil
	}))
	d.MustRegister(cmd("createEncryptionKey"), typed(func(context.Context, *empty) (*KeyResponse, error) {
		k, err := s.CreateEncryptionKey()
		if err != nil {
			return nil, err
		}
		return &KeyResponse{Key: k}, nil
	}))
	d.MustRegister(cmd("convertConnectionToUri"), typed(func(_ context.Context, req *ConvertRequest) (*URIResponse, error) {
		uri, err := s.ConvertConnectionToURI(req.Connection)
		if err != nil {
			return nil, err
		}
		return &URIResponse{URI: uri}, nil
	}))
	d.MustRegister(cmd("convertUriToConnection"), typed(func(_ context.Context, req *ConvertRequest) (*model.StoredConnection, error) {
		return s.ConvertURIToConnection(req.URI, req.Connection)
	}))
}

func registerDatabase(d *Dispatcher, s *biz.DatabaseService) {
	cmd := func(action string) Command { return Command{Library: LibraryDatabase, Action: action} }

	d.MustRegister(cmd("listCollections"), typed(s.ListCollections))
	d.MustRegister(cmd("createDatabase"), noResult(s.CreateDatabase))
	d.MustRegister(cmd("dropDatabase"), noResult(s.DropDatabase))
	d.MustRegister(cmd("createCollection"), noResult(s.CreateCollection))
	d.MustRegister(cmd("dropCollection"), noResult(s.DropCollection))
	d.MustRegister(cmd("listIndexes"), typed(s.ListIndexes))
	d.MustRegister(cmd("getCollectionStats"), typed(s.GetCollectionStats))
	d.MustRegister(cmd("dropIndex"), noResult(s.DropIndex))
	d.MustRegister(cmd("dropAllIndexes"), noResult(s.DropAllIndexes))
}

func registerQuery(d *Dispatcher, s *biz.QueryService) {
	cmd := func(action string) Command { return Command{Library: LibraryQuery, Action: action} }

	d.MustRegister(cmd("updateOne"), typed(s.UpdateOne))
	d.MustRegister(cmd("updateMany"), typed(s.UpdateMany))
	d.MustRegister(cmd("deleteOne"), typed(s.DeleteOne))
	d.MustRegister(cmd("deleteMany"), typed(s.DeleteMany))
}

func registerShell(d *Dispatcher, s *biz.ShellService) {
	cmd := func(action string) Command { return Command{Library: LibraryShell, Action: action} }

	d.MustRegister(cmd("create"), typed(func(ctx context.Context, req *biz.CreateShellRequest) (*SessionResponse, error) {
		sid, err := s.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return &SessionResponse{SessionID: sid}, nil
	}))
	d.MustRegister(cmd("eval"), typed(s.Eval))
	d.MustRegister(cmd("export"), typed(func(ctx context.Context, req *biz.ShellExportRequest) (*PathResponse, error) {
		path, err := s.Export(ctx, req)
		if err != nil {
			return nil, err
		}
		return &PathResponse{Path: path}, nil
	}))
	d.MustRegister(cmd("destroy"), noResult(func(ctx context.Context, req *SessionRequest) error {
		return s.Destroy(ctx, req.SessionID)
	}))
}

func registerScript(d *Dispatcher, s *biz.ScriptService) {
	cmd := func(action string) Command { return Command{Library: LibraryScript, Action: action} }

	d.MustRegister(cmd("list"), typed(func(ctx context.Context, _ *empty) ([]*model.Script, error) {
		return s.List(ctx)
	}))
	d.MustRegister(cmd("open"), byID(s.Open))
	d.MustRegister(cmd("save"), typed(s.Save))
	d.MustRegister(cmd("delete"), byIDNoResult(s.Delete))
}

func registerSettings(d *Dispatcher, s *biz.SettingsService) {
	cmd := func(action string) Command { return Command{Library: LibrarySettings, Action: action} }

	d.MustRegister(cmd("get"), typed(func(ctx context.Context, _ *empty) (*model.Settings, error) {
		return s.Get(ctx)
	}))
	d.MustRegister(cmd("save"), typed(s.Save))
}
