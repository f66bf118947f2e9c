package biz

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/ark/export"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/ark/shell"
	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/id"
)

// CreateShellRequest opens a session on a live connection.
type CreateShellRequest struct {
	ConnectionID string `json:"connectionId"`
	Database     string `json:"database"`
}

// EvalRequest runs code in a session. Timeout is in seconds.
type EvalRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Page      int64  `json:"page"`
	Limit     int64  `json:"limit"`
	Timeout   int    `json:"timeout"`
}

// EvalResponse carries the result as the BSON document {result: value}.
type EvalResponse struct {
	Result             []byte `json:"result"`
	Editable           bool   `json:"editable"`
	IsCursor           bool   `json:"isCursor"`
	IsNotDocumentArray bool   `json:"isNotDocumentArray"`
}

// ShellExportRequest exports the result of code to a file.
type ShellExportRequest struct {
	SessionID string         `json:"sessionId"`
	Code      string         `json:"code"`
	Options   export.Options `json:"options"`
}

type session struct {
	connID    string
	database  string
	evaluator *shell.Evaluator
}

// ShellService manages script sessions. Each session owns a driver client
// separate from the cached connection.
type ShellService struct {
	conns    *ConnectionService
	registry *registry.Registry
	dialer   driver.Dialer
	runner   shell.ScriptRunner
	settings *SettingsService
	ids      id.Generator

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewShellService creates a new ShellService. A nil runner selects the
// built-in one.
func NewShellService(conns *ConnectionService, reg *registry.Registry, dialer driver.Dialer,
	runner shell.ScriptRunner, settings *SettingsService,
) *ShellService {
	return &ShellService{
		conns:    conns,
		registry: reg,
		dialer:   dialer,
		runner:   runner,
		settings: settings,
		ids:      id.NewULIDGenerator(),
		sessions: make(map[string]*session),
	}
}

// Create opens a session and returns its id.
func (s *ShellService) Create(ctx context.Context, req *CreateShellRequest) (string, error) {
	e, err := s.conns.Live(req.ConnectionID)
	if err != nil {
		return "", err
	}
	conn, err := s.registry.Load(ctx, req.ConnectionID)
	if err != nil {
		return "", err
	}

	target := conn
	if e.Tunnel != nil {
		target = throughTunnel(conn, e.Tunnel.Addr())
	} else if len(conn.Hosts) > 1 && conn.Options.ReplicaSet == "" {
		details, err := replicaSet(ctx, e.Client)
		if err != nil {
			return "", err
		}
		if details != nil {
			target.Options.ReplicaSet = details.Set
		}
	}

	uri, err := s.registry.BuildURI(ctx, target, true)
	if err != nil {
		return "", err
	}
	client, err := s.dialer.Dial(ctx, uri)
	if err != nil {
		return "", err
	}

	sid := s.ids.Generate()
	s.mu.Lock()
	s.sessions[sid] = &session{
		connID:    req.ConnectionID,
		database:  req.Database,
		evaluator: shell.NewEvaluator(client, s.runner),
	}
	s.mu.Unlock()

	logger.Infow("Created shell session", "session_id", sid, "connection_id", req.ConnectionID, "database", req.Database)
	return sid, nil
}

// Eval runs code and returns one page of its result.
func (s *ShellService) Eval(ctx context.Context, req *EvalRequest) (*EvalResponse, error) {
	sess, err := s.validate(req.SessionID)
	if err != nil {
		return nil, err
	}

	opts := s.settings.Effective(ctx).evalOptions(req.Page, req.Limit, req.Timeout)
	res, err := sess.evaluator.Evaluate(ctx, req.Code, sess.database, opts)
	if err != nil {
		return nil, err
	}
	payload, err := res.Marshal()
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	return &EvalResponse{
		Result:             payload,
		Editable:           res.Editable(),
		IsCursor:           res.IsCursor,
		IsNotDocumentArray: res.IsNotDocumentArray,
	}, nil
}

// Export writes the full result of code to a file and returns its path.
// Relative file names resolve against the export directory.
func (s *ShellService) Export(ctx context.Context, req *ShellExportRequest) (string, error) {
	sess, err := s.validate(req.SessionID)
	if err != nil {
		return "", err
	}

	d := s.settings.Effective(ctx)
	opts := req.Options
	if opts.Delimiter == 0 {
		opts.Delimiter = d.CSVDelimiter
	}
	if opts.FileName != "" && !filepath.IsAbs(opts.FileName) && d.ExportDirectory != "" {
		opts.FileName = filepath.Join(d.ExportDirectory, opts.FileName)
	}

	summary, err := sess.evaluator.Export(ctx, req.Code, sess.database, opts)
	if err != nil {
		return "", err
	}
	logger.Infow("Exported shell result", "session_id", req.SessionID, "path", summary.Path, "documents", summary.Documents)
	return summary.Path, nil
}

// Destroy closes a session's client and forgets the session.
func (s *ShellService) Destroy(_ context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return errors.ErrBrokenShell.WithMessagef("no shell session %q", sessionID)
	}
	sess.evaluator.Disconnect()
	logger.Infow("Destroyed shell session", "session_id", sessionID)
	return nil
}

// Close destroys every session.
func (s *ShellService) Close(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for sid := range s.sessions {
		ids = append(ids, sid)
	}
	s.mu.RUnlock()
	for _, sid := range ids {
		_ = s.Destroy(ctx, sid)
	}
}

// validate returns the session after checking that its connection is still
// live and its tunnel, if any, still listens.
func (s *ShellService) validate(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrBrokenShell.WithMessagef("no shell session %q", sessionID)
	}
	if _, err := s.conns.Live(sess.connID); err != nil {
		return nil, err
	}
	return sess, nil
}
