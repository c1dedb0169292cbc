package domain

import (
	"log/slog"
)

// QueryCompiler compiles a query into an evaluator. It is used by components
// that embed queries, such as conditional projections and array updates.
type QueryCompiler func(Query) (QueryEvaluator, error)

// WithMatcherComparer sets the comparer implementation for value comparisons
// in matcher.
func WithMatcherComparer(c Comparer) MatcherOption {
	return func(mo *MatcherOptions) {
		mo.Comparer = c
	}
}

// WithMatcherFieldNavigator sets the field navigator for accessing document
// fields in matcher.
func WithMatcherFieldNavigator(f FieldNavigator) MatcherOption {
	return func(mo *MatcherOptions) {
		mo.FieldNavigator = f
	}
}

// MatcherOption configures matcher behavior through the functional options
// pattern.
type MatcherOption func(*MatcherOptions)

// MatcherOptions contains parameters for customizing matcher behavior.
type MatcherOptions struct {
	// Comparer provides value comparison operations.
	Comparer Comparer
	// FieldNavigator provides field access operations.
	FieldNavigator FieldNavigator
}

// WithProjectorFieldNavigator sets the [FieldNavigator] that will be used by
// [Projector]
func WithProjectorFieldNavigator(fn FieldNavigator) ProjectorOption {
	return func(po *ProjectorOptions) {
		po.FieldNavigator = fn
	}
}

// WithProjectorDocumentFactory sets the [Document] factory function that will
// be used by [Projector]
func WithProjectorDocumentFactory(df DocumentFactory) ProjectorOption {
	return func(po *ProjectorOptions) {
		po.DocumentFactory = df
	}
}

// WithProjectorQueryCompiler sets the function used to compile the queries
// of conditional array projections.
func WithProjectorQueryCompiler(qc QueryCompiler) ProjectorOption {
	return func(po *ProjectorOptions) {
		po.QueryCompiler = qc
	}
}

// ProjectorOption configures projector behavior through the functional options
// pattern.
type ProjectorOption func(*ProjectorOptions)

// ProjectorOptions contains parameters for customizing projector behavior.
type ProjectorOptions struct {
	FieldNavigator  FieldNavigator
	DocumentFactory DocumentFactory
	QueryCompiler   QueryCompiler
}

// WithModifierComparer sets the comparer used to dedupe and remove array
// elements.
func WithModifierComparer(c Comparer) ModifierOption {
	return func(mo *ModifierOptions) {
		mo.Comparer = c
	}
}

// WithModifierFieldNavigator sets the field navigator used to resolve update
// targets.
func WithModifierFieldNavigator(f FieldNavigator) ModifierOption {
	return func(mo *ModifierOptions) {
		mo.FieldNavigator = f
	}
}

// WithModifierDocumentFactory sets the document factory used to create
// intermediate objects.
func WithModifierDocumentFactory(df DocumentFactory) ModifierOption {
	return func(mo *ModifierOptions) {
		mo.DocumentFactory = df
	}
}

// WithModifierQueryCompiler sets the function used to compile the queries of
// array removals and foreach updates.
func WithModifierQueryCompiler(qc QueryCompiler) ModifierOption {
	return func(mo *ModifierOptions) {
		mo.QueryCompiler = qc
	}
}

// ModifierOption configures modifier behavior through the functional options
// pattern.
type ModifierOption func(*ModifierOptions)

// ModifierOptions contains parameters for customizing modifier behavior.
type ModifierOptions struct {
	Comparer        Comparer
	FieldNavigator  FieldNavigator
	DocumentFactory DocumentFactory
	QueryCompiler   QueryCompiler
}

// WithFactoryComparer sets the comparer shared by every compiled evaluator.
func WithFactoryComparer(c Comparer) FactoryOption {
	return func(fo *FactoryOptions) {
		fo.Comparer = c
	}
}

// WithFactoryFieldNavigator sets the field navigator shared by every compiled
// evaluator.
func WithFactoryFieldNavigator(f FieldNavigator) FactoryOption {
	return func(fo *FactoryOptions) {
		fo.FieldNavigator = f
	}
}

// WithFactoryDocumentFactory sets the document factory shared by every
// compiled evaluator.
func WithFactoryDocumentFactory(df DocumentFactory) FactoryOption {
	return func(fo *FactoryOptions) {
		fo.DocumentFactory = df
	}
}

// FactoryOption configures an [EvaluatorFactory].
type FactoryOption func(*FactoryOptions)

// FactoryOptions contains the collaborators of an [EvaluatorFactory].
type FactoryOptions struct {
	Comparer        Comparer
	FieldNavigator  FieldNavigator
	DocumentFactory DocumentFactory
}

// WithParserTypes sets the type registry used to resolve simple field types.
func WithParserTypes(t map[string]Type) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.Types = t
	}
}

// WithParserConstraints sets the constraint registry. Constraints not found
// in it are rejected.
func WithParserConstraints(c map[string]ConstraintParser) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.Constraints = c
	}
}

// WithParserHooks sets the hook registry used to configure entity hooks.
func WithParserHooks(h map[string]Hook) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.Hooks = h
	}
}

// WithParserDefaultFieldType sets the type used by fields that do not
// declare one.
func WithParserDefaultFieldType(t string) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.DefaultFieldType = t
	}
}

// WithParserDefaultBackend sets the backend used by entities that do not
// declare one.
func WithParserDefaultBackend(b string) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.DefaultBackend = b
	}
}

// WithParserDecoder sets the decoder used for raw configuration values.
func WithParserDecoder(d Decoder) MetadataParserOption {
	return func(po *MetadataParserOptions) {
		po.Decoder = d
	}
}

// MetadataParserOption configures a metadata parser.
type MetadataParserOption func(*MetadataParserOptions)

// MetadataParserOptions contains the registries and defaults used when
// parsing entity metadata.
type MetadataParserOptions struct {
	Types            map[string]Type
	Constraints      map[string]ConstraintParser
	Hooks            map[string]Hook
	DefaultFieldType string
	DefaultBackend   string
	Decoder          Decoder
}

// WithMediatorLogger sets the structured logger. Nil discards logs.
func WithMediatorLogger(l *slog.Logger) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Logger = l
	}
}

// WithMediatorMaxConcurrency sets how many documents of a request may be
// processed at the same time. Values below one mean one.
func WithMediatorMaxConcurrency(n int) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.MaxConcurrency = n
	}
}

// WithMediatorFactory sets the factory used to compile request expressions.
func WithMediatorFactory(f EvaluatorFactory) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Factory = f
	}
}

// WithMediatorProvider sets the metadata provider.
func WithMediatorProvider(p MetadataProvider) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Provider = p
	}
}

// WithMediatorCheckers sets the constraint checkers keyed by constraint type.
func WithMediatorCheckers(c map[string]ConstraintChecker) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Checkers = c
	}
}

// WithMediatorHooks sets the hooks keyed by name.
func WithMediatorHooks(h map[string]Hook) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Hooks = h
	}
}

// WithMediatorController registers a backend controller under the given
// name.
func WithMediatorController(name string, c Controller) MediatorOption {
	return func(mo *MediatorOptions) {
		if mo.Controllers == nil {
			mo.Controllers = make(map[string]Controller)
		}
		mo.Controllers[name] = c
	}
}

// WithMediatorDefaultBackend sets the controller used by entities that do
// not name a backend.
func WithMediatorDefaultBackend(name string) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.DefaultBackend = name
	}
}

// WithMediatorIDField sets the name of the id field.
func WithMediatorIDField(f string) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.IDField = f
	}
}

// WithMediatorIDGenerator sets the function used to generate the ids of
// inserted documents that have none.
func WithMediatorIDGenerator(g func() string) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.IDGenerator = g
	}
}

// WithMediatorDocumentFactory sets the document factory.
func WithMediatorDocumentFactory(df DocumentFactory) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.DocumentFactory = df
	}
}

// WithMediatorComparer sets the comparer used to sort find results.
func WithMediatorComparer(c Comparer) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.Comparer = c
	}
}

// WithMediatorFieldNavigator sets the field navigator used to read sort keys.
func WithMediatorFieldNavigator(f FieldNavigator) MediatorOption {
	return func(mo *MediatorOptions) {
		mo.FieldNavigator = f
	}
}

// MediatorOption configures a Mediator.
type MediatorOption func(*MediatorOptions)

// MediatorOptions contains the collaborators of a Mediator.
type MediatorOptions struct {
	Logger          *slog.Logger
	MaxConcurrency  int
	Factory         EvaluatorFactory
	Provider        MetadataProvider
	Checkers        map[string]ConstraintChecker
	Hooks           map[string]Hook
	Controllers     map[string]Controller
	DefaultBackend  string
	IDField         string
	IDGenerator     func() string
	DocumentFactory DocumentFactory
	Comparer        Comparer
	FieldNavigator  FieldNavigator
}

// WithControllerIDField sets the name of the id field read by a controller.
func WithControllerIDField(f string) ControllerOption {
	return func(co *ControllerOptions) {
		co.IDField = f
	}
}

// WithControllerDocumentFactory sets the factory of the documents returned by
// a controller.
func WithControllerDocumentFactory(df DocumentFactory) ControllerOption {
	return func(co *ControllerOptions) {
		co.DocumentFactory = df
	}
}

// WithControllerComparer sets the comparer used to order document ids.
func WithControllerComparer(c Comparer) ControllerOption {
	return func(co *ControllerOptions) {
		co.Comparer = c
	}
}

// WithControllerTablePrefix sets the prefix of the tables created by SQL
// controllers.
func WithControllerTablePrefix(p string) ControllerOption {
	return func(co *ControllerOptions) {
		co.TablePrefix = p
	}
}

// ControllerOption configures the default backend controllers.
type ControllerOption func(*ControllerOptions)

// ControllerOptions contains parameters shared by the default backend
// controllers. Options a controller does not use are ignored.
type ControllerOptions struct {
	IDField         string
	DocumentFactory DocumentFactory
	Comparer        Comparer
	TablePrefix     string
}
