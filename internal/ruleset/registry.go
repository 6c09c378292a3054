package ruleset

import (
	"fmt"
	"sync"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// NotFoundError reports a missing rule table. The engine never falls back to
// an adjacent year's table implicitly.
type NotFoundError struct {
	Jurisdiction tax.Jurisdiction
	TaxYear      int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no rule table published for %s/%d", e.Jurisdiction, e.TaxYear)
}

func (e *NotFoundError) Unwrap() error { return errs.ErrRuleTableNotFound }

// TreatyNotFoundError reports a missing treaty row; the caller must surface it
// as "manual verification required", never guess a split.
type TreatyNotFoundError struct {
	Source    tax.Jurisdiction
	Residence tax.Jurisdiction
	Category  tax.IncomeCategory
}

func (e *TreatyNotFoundError) Error() string {
	return fmt.Sprintf("no treaty row for %s income sourced in %s, residence %s", e.Category, e.Source, e.Residence)
}

func (e *TreatyNotFoundError) Unwrap() error { return errs.ErrTreatyNotFound }

// Source resolves published rule tables and treaty rows.
type Source interface {
	Lookup(jurisdiction tax.Jurisdiction, taxYear int) (RuleTable, error)
	LookupTreaty(source, residence tax.Jurisdiction, category tax.IncomeCategory) (TreatyRule, error)
}

type tableKey struct {
	jurisdiction tax.Jurisdiction
	year         int
}

type treatyKey struct {
	source    tax.Jurisdiction
	residence tax.Jurisdiction
	category  tax.IncomeCategory
}

// Registry is an in-memory, publish-once set of rule tables and treaty rows.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tables   map[tableKey]RuleTable
	treaties map[treatyKey]TreatyRule
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:   make(map[tableKey]RuleTable),
		treaties: make(map[treatyKey]TreatyRule),
	}
}

// Publish registers a table for its (jurisdiction, year). Publishing over an
// existing table fails with errs.ErrImmutable: published tables never mutate.
func (r *Registry) Publish(t RuleTable) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tableKey{t.Jurisdiction, t.TaxYear}
	if _, ok := r.tables[k]; ok {
		return fmt.Errorf("rule table %s/%d already published: %w", t.Jurisdiction, t.TaxYear, errs.ErrImmutable)
	}
	r.tables[k] = t
	return nil
}

// PublishTreaty registers a treaty row, publish-once like tables.
func (r *Registry) PublishTreaty(tr TreatyRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := treatyKey{tr.Source, tr.Residence, tr.Category}
	if _, ok := r.treaties[k]; ok {
		return fmt.Errorf("treaty row %s->%s/%s already published: %w", tr.Source, tr.Residence, tr.Category, errs.ErrImmutable)
	}
	r.treaties[k] = tr
	return nil
}

// Lookup implements Source.
func (r *Registry) Lookup(j tax.Jurisdiction, year int) (RuleTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[tableKey{j, year}]
	if !ok {
		return RuleTable{}, &NotFoundError{Jurisdiction: j, TaxYear: year}
	}
	return t, nil
}

// LookupTreaty implements Source.
func (r *Registry) LookupTreaty(source, residence tax.Jurisdiction, category tax.IncomeCategory) (TreatyRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.treaties[treatyKey{source, residence, category}]
	if !ok {
		return TreatyRule{}, &TreatyNotFoundError{Source: source, Residence: residence, Category: category}
	}
	return tr, nil
}
