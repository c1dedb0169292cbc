// Package gedal provides a generic entity data-access layer.
//
// Entities are described by metadata (fields, types, constraints, access
// rules, hooks and the backend that stores them). Requests name an entity
// and an operation and carry query, projection and update expressions,
// which are evaluated the same way whatever backend stores the entity:
// backends run the parts they can translate natively and everything else is
// evaluated in process.
//
// The basic usage starts with creating a new [DB] by calling [Open].
package gedal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/controller/memory"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/controller/sqlite"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/mediator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/metadata"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/parser"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
	"github.com/vinicius-lino-figueiredo/gedal/internal/config"
)

// Names of the built-in backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Operations.
const (
	OpFind   = domain.OpFind
	OpInsert = domain.OpInsert
	OpSave   = domain.OpSave
	OpUpdate = domain.OpUpdate
	OpDelete = domain.OpDelete
)

// Request statuses.
const (
	StatusCompleted       = domain.StatusCompleted
	StatusPartiallyFailed = domain.StatusPartiallyFailed
	StatusFailed          = domain.StatusFailed
)

var (
	// ErrUnsupported is returned by a [Controller] that cannot translate
	// an expression.
	ErrUnsupported = domain.ErrUnsupported
	// ErrCancelled is recorded on documents skipped because the request
	// was cancelled.
	ErrCancelled = domain.ErrCancelled
	// ErrDuplicateID is recorded when an inserted document reuses an id.
	ErrDuplicateID = domain.ErrDuplicateID
	// ErrDocumentNotFound is recorded when a saved document does not
	// exist and upsert is off.
	ErrDocumentNotFound = domain.ErrDocumentNotFound
	// ErrMissingID is recorded when a document has no id where one is
	// needed.
	ErrMissingID = domain.ErrMissingID
	// ErrNoMemoryBackend is returned by [DB.Snapshot] and [DB.Restore]
	// when the memory backend was replaced by [WithController].
	ErrNoMemoryBackend = errors.New("memory backend not in use")
)

// ErrEntityNotFound is returned when the metadata of an entity version
// cannot be resolved.
type ErrEntityNotFound = domain.ErrEntityNotFound

// ErrRequest is returned for malformed requests.
type ErrRequest = domain.ErrRequest

// ErrAccessDenied is returned when none of the request roles may run the
// operation.
type ErrAccessDenied = domain.ErrAccessDenied

// ErrParse is returned when metadata or a request cannot be parsed.
type ErrParse = domain.ErrParse

// Violation is recorded on a document that breaks a constraint.
type Violation = domain.Violation

// UpdateError is recorded on a document when one update node fails.
type UpdateError = domain.UpdateError

// CastError is returned when a value does not fit its field type.
type CastError = domain.CastError

// HookError is recorded on a request when a hook fails.
type HookError = domain.HookError

// Document is an ordered tree of fields.
type Document = domain.Document

// Request describes one operation on one entity.
type Request = domain.Request

// Response is the outcome of a [Request].
type Response = domain.Response

// EntityVersion identifies a versioned entity schema.
type EntityVersion = domain.EntityVersion

// EntityMetadata is the complete description of an entity version.
type EntityMetadata = domain.EntityMetadata

// Hook is run after the documents of a request are processed.
type Hook = domain.Hook

// Controller is the capability a storage backend implements.
type Controller = domain.Controller

// Config is the process configuration read by [LoadConfig].
type Config = config.Config

// LoadConfig reads the configuration file at path, if not empty, and the
// GEDAL_* environment variables.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return config.Default()
}

// NewDocument builds a [Document] from a map, a struct or a Document.
func NewDocument(v any) (Document, error) {
	return data.NewDocument(v)
}

// Option configures [Open].
type Option func(*options)

type options struct {
	logger      *slog.Logger
	hooks       map[string]Hook
	controllers map[string]Controller
	metadata    []fs.FS
}

// WithLogger sets the logger. By default warnings and errors go to standard
// error at the configured level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHook registers a hook that entity metadata can declare by name.
func WithHook(name string, h Hook) Option {
	return func(o *options) {
		o.hooks[name] = h
	}
}

// WithController registers a backend, replacing any built-in one with the
// same name.
func WithController(name string, c Controller) Option {
	return func(o *options) {
		o.controllers[name] = c
	}
}

// WithMetadataFS loads every YAML and JSON metadata file of fsys.
func WithMetadataFS(fsys fs.FS) Option {
	return func(o *options) {
		o.metadata = append(o.metadata, fsys)
	}
}

// DB runs requests against entities described by metadata.
type DB struct {
	provider *metadata.StaticProvider
	parser   *metadata.Parser
	memory   *memory.Controller
	sqlite   *sqlite.Controller
	mediator *mediator.Mediator
}

// Open creates a new DB from cfg and the provided options:
//
// - [WithLogger]: sets the structured logger.
//
// - [WithHook]: registers a hook by name.
//
// - [WithController]: registers a backend controller by name.
//
// - [WithMetadataFS]: loads entity metadata from a file system.
//
// An in-memory backend is always available as "memory". A sqlite backend is
// opened as "sqlite" when cfg.SQLite.DSN is set; it is closed by
// [DB.Close].
func Open(cfg Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	o := options{
		hooks:       make(map[string]Hook),
		controllers: make(map[string]Controller),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	db := &DB{
		provider: metadata.NewStaticProvider(),
		parser: metadata.NewParser(
			domain.WithParserHooks(o.hooks),
			domain.WithParserDefaultFieldType(cfg.DefaultFieldType),
			domain.WithParserDefaultBackend(cfg.DefaultBackend),
		),
	}
	if cfg.MetadataDir != "" {
		o.metadata = append(o.metadata, os.DirFS(cfg.MetadataDir))
	}
	for _, fsys := range o.metadata {
		if err := db.provider.LoadFS(fsys, db.parser); err != nil {
			return nil, fmt.Errorf("loading metadata: %w", err)
		}
	}

	controllers := map[string]Controller{}
	if _, ok := o.controllers[BackendMemory]; !ok {
		db.memory = memory.NewController(domain.WithControllerIDField(cfg.IDField))
		controllers[BackendMemory] = db.memory
	}
	if _, ok := o.controllers[BackendSQLite]; !ok && cfg.SQLite.DSN != "" {
		c, err := sqlite.Open(cfg.SQLite.DSN,
			domain.WithControllerIDField(cfg.IDField),
			domain.WithControllerTablePrefix(cfg.SQLite.TablePrefix),
		)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		db.sqlite = c
		controllers[BackendSQLite] = c
	}
	for name, c := range o.controllers {
		controllers[name] = c
	}

	mopts := []domain.MediatorOption{
		domain.WithMediatorLogger(o.logger),
		domain.WithMediatorMaxConcurrency(cfg.MaxConcurrency),
		domain.WithMediatorProvider(db.provider),
		domain.WithMediatorHooks(o.hooks),
		domain.WithMediatorDefaultBackend(cfg.DefaultBackend),
		domain.WithMediatorIDField(cfg.IDField),
	}
	for name, c := range controllers {
		mopts = append(mopts, domain.WithMediatorController(name, c))
	}
	db.mediator = mediator.NewMediator(mopts...)
	return db, nil
}

// Close releases the sqlite backend, if one was opened.
func (db *DB) Close() error {
	if db.sqlite == nil {
		return nil
	}
	return db.sqlite.Close()
}

// AddMetadata registers entity metadata, replacing the versions already
// known.
func (db *DB) AddMetadata(mds ...*EntityMetadata) {
	for _, md := range mds {
		db.provider.Add(md)
	}
}

// LoadMetadata parses an entity document, in YAML or JSON, and registers
// its versions.
func (db *DB) LoadMetadata(b []byte) error {
	n, err := tree.ParseYAML(b)
	if err != nil {
		return err
	}
	mds, err := db.parser.Parse(n)
	if err != nil {
		return err
	}
	db.AddMetadata(mds...)
	return nil
}

// Execute runs req. Request-fatal errors are reported in the response.
func (db *DB) Execute(ctx context.Context, req *Request) *Response {
	return db.mediator.Execute(ctx, req)
}

// ExecuteJSON parses a JSON request and runs it.
func (db *DB) ExecuteJSON(ctx context.Context, b []byte) (*Response, error) {
	n, err := tree.ParseJSON(b)
	if err != nil {
		return nil, err
	}
	req, err := parser.ParseRequest(n, data.NewDocument)
	if err != nil {
		return nil, err
	}
	return db.Execute(ctx, req), nil
}

// Snapshot writes every document of the memory backend to w as JSON lines.
func (db *DB) Snapshot(ctx context.Context, w io.Writer) error {
	if db.memory == nil {
		return ErrNoMemoryBackend
	}
	return db.memory.Snapshot(ctx, w)
}

// Restore replaces the content of the memory backend with a snapshot.
func (db *DB) Restore(ctx context.Context, r io.Reader) error {
	if db.memory == nil {
		return ErrNoMemoryBackend
	}
	return db.memory.Restore(ctx, r)
}
