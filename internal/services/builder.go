package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/schema"
)

const readLimit = 50

// allowedOperators is the fixed predicate set: equality and range
// comparisons, nothing else.
var allowedOperators = map[string]string{
	"=":  "=",
	"!=": "<>",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

// QueryBuilder compiles a validated Intent plus the caller's role into a
// ParameterizedOperation. Every value is bound as a parameter; no text from
// the intent is ever interpolated into the query.
type QueryBuilder struct {
	descriptor *schema.Descriptor
}

func NewQueryBuilder(descriptor *schema.Descriptor) *QueryBuilder {
	return &QueryBuilder{descriptor: descriptor}
}

func (b *QueryBuilder) Build(intent *domain.Intent, role domain.Role) (*domain.ParameterizedOperation, error) {
	entity, ok := b.descriptor.Entity(intent.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntity, intent.Entity)
	}

	if !entity.Operations[intent.Kind] || !schema.ScopeFor(role).Allows(entity.Name, intent.Kind) {
		return nil, fmt.Errorf("%w: role %s may not %s %s", domain.ErrForbidden, role, intent.Kind, entity.Name)
	}

	values, err := b.coerceValues(entity, intent.Values)
	if err != nil {
		return nil, err
	}
	filters, err := b.coerceFilters(entity, intent.Filters)
	if err != nil {
		return nil, err
	}

	switch intent.Kind {
	case domain.OpRead:
		return b.buildSelect(entity, filters), nil
	case domain.OpCreate:
		return b.buildInsert(entity, values)
	case domain.OpUpdate:
		return b.buildUpdate(entity, values, filters)
	case domain.OpDelete:
		return b.buildDelete(entity, filters)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, intent.Kind)
}

type boundValue struct {
	field string
	value any
}

type boundFilter struct {
	field string
	op    string
	value any
}

func (b *QueryBuilder) coerceValues(entity schema.Entity, raw map[string]any) ([]boundValue, error) {
	values := make([]boundValue, 0, len(raw))
	for field, v := range raw {
		field = strings.ToLower(strings.TrimSpace(field))
		fieldType, ok := entity.Fields[field]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", domain.ErrUnknownField, field, entity.Name)
		}
		coerced, err := schema.Coerce(fieldType, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		values = append(values, boundValue{field: field, value: coerced})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].field < values[j].field })
	return values, nil
}

func (b *QueryBuilder) coerceFilters(entity schema.Entity, raw []domain.Filter) ([]boundFilter, error) {
	filters := make([]boundFilter, 0, len(raw))
	for _, f := range raw {
		field := strings.ToLower(strings.TrimSpace(f.Field))
		fieldType, ok := entity.Fields[field]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", domain.ErrUnknownField, field, entity.Name)
		}
		sqlOp, ok := allowedOperators[strings.TrimSpace(f.Op)]
		if !ok {
			return nil, fmt.Errorf("%w: operator %q", domain.ErrUnsupportedOperation, f.Op)
		}
		coerced, err := schema.Coerce(fieldType, f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", field, err)
		}
		filters = append(filters, boundFilter{field: field, op: sqlOp, value: coerced})
	}
	return filters, nil
}

func (b *QueryBuilder) buildSelect(entity schema.Entity, filters []boundFilter) *domain.ParameterizedOperation {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(entity.FieldNames(), ", "), entity.Table)
	args := appendWhereArgs(&sb, filters, nil)
	fmt.Fprintf(&sb, " LIMIT %d", readLimit)
	return domain.NewParameterizedOperation(entity.Name, domain.OpRead, sb.String(), args)
}

func (b *QueryBuilder) buildInsert(entity schema.Entity, values []boundValue) (*domain.ParameterizedOperation, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: create without values", domain.ErrAmbiguousIntent)
	}
	// Generate the primary key unless the model supplied one.
	hasID := false
	for _, v := range values {
		if v.field == "id" {
			hasID = true
			break
		}
	}
	if !hasID {
		values = append([]boundValue{{field: "id", value: uuid.NewString()}}, values...)
	}

	cols := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for i, v := range values {
		cols = append(cols, v.field)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, v.value)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		entity.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return domain.NewParameterizedOperation(entity.Name, domain.OpCreate, query, args), nil
}

func (b *QueryBuilder) buildUpdate(entity schema.Entity, values []boundValue, filters []boundFilter) (*domain.ParameterizedOperation, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: update without values", domain.ErrAmbiguousIntent)
	}
	// A mutation that matches the whole table is treated as an unclear
	// request, not executed.
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: update without filters", domain.ErrAmbiguousIntent)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET updated_at = NOW()", entity.Table)
	args := make([]any, 0, len(values)+len(filters))
	for _, v := range values {
		args = append(args, v.value)
		fmt.Fprintf(&sb, ", %s = $%d", v.field, len(args))
	}
	args = appendWhereArgs(&sb, filters, args)
	return domain.NewParameterizedOperation(entity.Name, domain.OpUpdate, sb.String(), args), nil
}

func (b *QueryBuilder) buildDelete(entity schema.Entity, filters []boundFilter) (*domain.ParameterizedOperation, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: delete without filters", domain.ErrAmbiguousIntent)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s", entity.Table)
	args := appendWhereArgs(&sb, filters, nil)
	return domain.NewParameterizedOperation(entity.Name, domain.OpDelete, sb.String(), args), nil
}

func appendWhereArgs(sb *strings.Builder, filters []boundFilter, args []any) []any {
	if len(filters) == 0 {
		return args
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		args = append(args, f.value)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", f.field, f.op, len(args)))
	}
	sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	return args
}
