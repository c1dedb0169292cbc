// Package factory wires the default evaluators into a
// [domain.EvaluatorFactory].
package factory

import (
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/projector"
)

// Factory implements [domain.EvaluatorFactory]. Every evaluator it returns
// shares the same comparer and field navigator.
type Factory struct {
	matcher   *matcher.Matcher
	projector *projector.Projector
	modifier  *modifier.Modifier
}

// NewFactory returns a new Factory.
func NewFactory(options ...domain.FactoryOption) domain.EvaluatorFactory {
	opts := domain.FactoryOptions{
		Comparer:        comparer.NewComparer(),
		DocumentFactory: data.NewDocument,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}

	m := matcher.NewMatcher(
		domain.WithMatcherComparer(opts.Comparer),
		domain.WithMatcherFieldNavigator(opts.FieldNavigator),
	)
	return &Factory{
		matcher: m,
		projector: projector.NewProjector(
			domain.WithProjectorFieldNavigator(opts.FieldNavigator),
			domain.WithProjectorDocumentFactory(opts.DocumentFactory),
			domain.WithProjectorQueryCompiler(m.Compile),
		),
		modifier: modifier.NewModifier(
			domain.WithModifierComparer(opts.Comparer),
			domain.WithModifierFieldNavigator(opts.FieldNavigator),
			domain.WithModifierDocumentFactory(opts.DocumentFactory),
			domain.WithModifierQueryCompiler(m.Compile),
		),
	}
}

// Query implements [domain.EvaluatorFactory].
func (f *Factory) Query(q domain.Query) (domain.QueryEvaluator, error) {
	return f.matcher.Compile(q)
}

// Projection implements [domain.EvaluatorFactory].
func (f *Factory) Projection(p domain.Projection) (domain.Projector, error) {
	return f.projector.Compile(p)
}

// Update implements [domain.EvaluatorFactory].
func (f *Factory) Update(u domain.Update) (domain.Updater, error) {
	return f.modifier.Compile(u)
}
