package gedal

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
)

const taskMetadata = `
name: task
hooks:
  - name: audit
    actions: [insert]
versions:
  - version: "1"
    fields:
      title: string
      count:
        type: integer
`

const noteMetadata = `
name: note
backend: sqlite
versions:
  - version: "1"
    fields:
      text: string
`

type hookMock struct {
	mock.Mock
}

func (h *hookMock) Configure(raw domain.TreeNode) (domain.HookConfiguration, error) {
	call := h.Called(raw)
	return call.Get(0), call.Error(1)
}

func (h *hookMock) Execute(ctx context.Context, cfg domain.HookConfiguration, original, updated domain.Document, roles []string) error {
	return h.Called(ctx, cfg, original, updated, roles).Error(0)
}

type GedalTestSuite struct {
	suite.Suite
	ctx  context.Context
	hook *hookMock
	db   *DB
}

func (s *GedalTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.hook = new(hookMock)
	s.hook.On("Configure", mock.Anything).Return(nil, nil).Maybe()

	cfg := DefaultConfig()
	cfg.SQLite.DSN = ":memory:"
	db, err := Open(cfg,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithHook("audit", s.hook),
		WithMetadataFS(fstest.MapFS{
			"task.yaml": {Data: []byte(taskMetadata)},
			"README.md": {Data: []byte("ignored")},
		}),
	)
	s.Require().NoError(err)
	s.T().Cleanup(func() { s.NoError(db.Close()) })
	s.db = db
}

func (s *GedalTestSuite) exec(req string) *Response {
	res, err := s.db.ExecuteJSON(s.ctx, []byte(req))
	s.Require().NoError(err)
	return res
}

func (s *GedalTestSuite) TestInsertAndUpdate() {
	s.hook.On("Execute", mock.Anything, nil, nil, mock.Anything, mock.Anything).Return(nil).Twice()

	res := s.exec(`{"operation": "insert", "entity": "task", "documents": [
		{"_id": "a", "title": "one", "count": 1},
		{"_id": "b", "title": "two", "count": 2}
	]}`)
	s.Require().Equal(StatusCompleted, res.Status, res.Errors)

	res = s.exec(`{"operation": "update", "entity": "task",
		"query": {"field": "count", "op": ">", "rvalue": 1},
		"update": {"$set": {"title": "big"}}}`)
	s.Require().Equal(StatusCompleted, res.Status, res.Errors)
	s.Equal(1, res.Modified)

	res = s.db.Execute(s.ctx, &Request{Operation: OpFind, Entity: EntityVersion{Name: "task"}})
	docs := res.Succeeded()
	s.Require().Len(docs, 2)
	s.Equal("one", docs[0].Get("title"))
	s.Equal("big", docs[1].Get("title"))
	s.hook.AssertExpectations(s.T())
}

func (s *GedalTestSuite) TestSQLiteBackend() {
	s.Require().NoError(s.db.LoadMetadata([]byte(noteMetadata)))
	res := s.exec(`{"operation": "insert", "entity": "note", "documents": [{"_id": 1, "text": "hi"}]}`)
	s.Require().Equal(StatusCompleted, res.Status, res.Errors)

	res = s.exec(`{"operation": "find", "entity": "note", "query": {"field": "text", "op": "=", "rvalue": "hi"}}`)
	s.Require().Len(res.Succeeded(), 1)
	s.Equal(int64(1), res.Succeeded()[0].Get("_id"))

	// the memory backend does not see sqlite entities
	var buf bytes.Buffer
	s.Require().NoError(s.db.Snapshot(s.ctx, &buf))
	s.Empty(buf.String())
}

func (s *GedalTestSuite) TestSnapshotRestore() {
	s.hook.On("Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	doc, err := NewDocument(map[string]any{"_id": "a", "title": "kept"})
	s.Require().NoError(err)
	res := s.db.Execute(s.ctx, &Request{Operation: OpInsert, Entity: EntityVersion{Name: "task"}, Documents: []Document{doc}})
	s.Require().Equal(StatusCompleted, res.Status, res.Errors)

	var buf bytes.Buffer
	s.Require().NoError(s.db.Snapshot(s.ctx, &buf))

	res = s.exec(`{"operation": "delete", "entity": "task"}`)
	s.Require().Equal(1, res.Modified)

	s.Require().NoError(s.db.Restore(s.ctx, &buf))
	res = s.exec(`{"operation": "find", "entity": "task"}`)
	s.Require().Len(res.Succeeded(), 1)
	s.True(data.Equal(doc, res.Succeeded()[0]))
}

func (s *GedalTestSuite) TestErrors() {
	res := s.exec(`{"operation": "find", "entity": "missing"}`)
	s.Equal(StatusFailed, res.Status)
	s.ErrorAs(res.Errors[0], new(ErrEntityNotFound))

	_, err := s.db.ExecuteJSON(s.ctx, []byte(`{"operation": "explode", "entity": "task"}`))
	s.ErrorAs(err, new(ErrParse))

	s.Error(s.db.LoadMetadata([]byte("name: broken\nversions: 3\n")))
}

func (s *GedalTestSuite) TestInvalidConfig() {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 0
	_, err := Open(cfg)
	s.Error(err)

	_, err = Open(DefaultConfig(), WithMetadataFS(fstest.MapFS{
		"bad.yaml": {Data: []byte("name: [")},
	}))
	s.Error(err)
}

func (s *GedalTestSuite) TestCustomMemoryController() {
	db, err := Open(DefaultConfig(), WithController(BackendMemory, &stubController{}))
	s.Require().NoError(err)
	s.ErrorIs(db.Snapshot(s.ctx, &bytes.Buffer{}), ErrNoMemoryBackend)
}

type stubController struct {
	domain.Controller
}

func TestGedalTestSuite(t *testing.T) {
	suite.Run(t, new(GedalTestSuite))
}
