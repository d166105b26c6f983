package businessflow

import (
	"fmt"
	"strings"

	"github.com/amirphl/Yamata-WABA/models"
)

const contactPrefix = "contact."

// RowContext is one source row being materialized
type RowContext struct {
	RowNumber int
	Values    map[string]string
	Contact   *models.Contact
	MemberID  *uint
}

// Column returns a row value by header, falling back to a case-insensitive match
func (r *RowContext) Column(key string) (string, bool) {
	if v, ok := r.Values[key]; ok {
		return v, v != ""
	}
	for k, v := range r.Values {
		if strings.EqualFold(k, key) {
			return v, v != ""
		}
	}
	return "", false
}

// ContactField reads a contact field; csv-origin rows answer from their columns
func (r *RowContext) ContactField(name string) (string, bool) {
	if r.Contact != nil {
		return r.Contact.Field(name)
	}
	return r.Column(name)
}

// Lookup resolves expression identifiers
func (r *RowContext) Lookup(name string) (string, bool) {
	if attr, ok := strings.CutPrefix(name, contactPrefix); ok {
		return r.ContactField(attr)
	}
	return r.Column(name)
}

// ValueResolver produces the value of one placeholder for a row.
// ok is false when the source has no value.
type ValueResolver interface {
	Resolve(m *models.TemplateVariableMapping, row *RowContext) (value string, ok bool, err error)
}

type ContactFieldResolver struct{}

func (ContactFieldResolver) Resolve(m *models.TemplateVariableMapping, row *RowContext) (string, bool, error) {
	v, ok := row.ContactField(m.SourceKey)
	return v, ok, nil
}

type CsvColumnResolver struct{}

func (CsvColumnResolver) Resolve(m *models.TemplateVariableMapping, row *RowContext) (string, bool, error) {
	v, ok := row.Column(m.SourceKey)
	return v, ok, nil
}

type StaticResolver struct{}

func (StaticResolver) Resolve(m *models.TemplateVariableMapping, _ *RowContext) (string, bool, error) {
	return m.StaticValue, m.StaticValue != "", nil
}

// ExpressionResolver caches compiled expressions by source text; it is not safe for concurrent use
type ExpressionResolver struct {
	compiled map[string]*Expression
}

func NewExpressionResolver() *ExpressionResolver {
	return &ExpressionResolver{compiled: make(map[string]*Expression)}
}

func (r *ExpressionResolver) Resolve(m *models.TemplateVariableMapping, row *RowContext) (string, bool, error) {
	expr, ok := r.compiled[m.Expression]
	if !ok {
		var err error
		expr, err = ParseExpression(m.Expression)
		if err != nil {
			return "", false, err
		}
		r.compiled[m.Expression] = expr
	}
	v := expr.Evaluate(row.Lookup)
	return v, v != "", nil
}

// NewValueResolvers returns a resolver registry for one materialization run
func NewValueResolvers() map[models.SourceType]ValueResolver {
	return map[models.SourceType]ValueResolver{
		models.SourceTypeContactField: ContactFieldResolver{},
		models.SourceTypeCsvColumn:    CsvColumnResolver{},
		models.SourceTypeStatic:       StaticResolver{},
		models.SourceTypeExpression:   NewExpressionResolver(),
	}
}

// validateMapping checks the binding of one mapping. Errors wrap ErrInvalidMapping.
func validateMapping(m *models.TemplateVariableMapping) error {
	label := fmt.Sprintf("%s[%d]", m.Component, m.Index)
	switch m.SourceType {
	case models.SourceTypeCsvColumn, models.SourceTypeContactField:
		if strings.TrimSpace(m.SourceKey) == "" {
			return fmt.Errorf("%w: %s: %s requires source_key", ErrInvalidMapping, label, m.SourceType)
		}
	case models.SourceTypeStatic:
	case models.SourceTypeExpression:
		if strings.TrimSpace(m.Expression) == "" {
			return fmt.Errorf("%w: %s: Expression requires expression", ErrInvalidMapping, label)
		}
		if _, err := ParseExpression(m.Expression); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidMapping, label, err)
		}
	default:
		return fmt.Errorf("%w: %s: unknown source type %q", ErrInvalidMapping, label, m.SourceType)
	}
	return nil
}
