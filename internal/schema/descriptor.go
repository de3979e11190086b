package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chatquery/chatquery/internal/domain"
)

// FieldType is the declared type of a whitelisted column.
type FieldType string

const (
	TypeUUID      FieldType = "uuid"
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeNumeric   FieldType = "numeric"
	TypeInteger   FieldType = "integer"
	TypeBoolean   FieldType = "boolean"
	TypeTimestamp FieldType = "timestamp"
)

// Entity describes one whitelisted table.
type Entity struct {
	Name       string
	Table      string
	Fields     map[string]FieldType
	Operations map[domain.OperationKind]bool
}

// FieldNames returns the whitelisted columns in stable order.
func (e Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Descriptor is the closed whitelist of entities the bot will ever touch.
// Loaded once at startup, read-only afterwards.
type Descriptor struct {
	entities map[string]Entity
}

// Default returns the descriptor for the employees and products tables.
// hashed_password is deliberately absent from the employees whitelist.
func Default() *Descriptor {
	return &Descriptor{entities: map[string]Entity{
		"employees": {
			Name:  "employees",
			Table: "employees",
			Fields: map[string]FieldType{
				"id":               TypeUUID,
				"name":             TypeString,
				"username":         TypeString,
				"phone_number":     TypeString,
				"email":            TypeString,
				"role":             TypeString,
				"is_authenticated": TypeBoolean,
				"created_at":       TypeTimestamp,
				"updated_at":       TypeTimestamp,
			},
			Operations: map[domain.OperationKind]bool{
				domain.OpCreate: true,
				domain.OpRead:   true,
				domain.OpUpdate: true,
				domain.OpDelete: true,
			},
		},
		"products": {
			Name:  "products",
			Table: "products",
			Fields: map[string]FieldType{
				"id":                 TypeUUID,
				"name":               TypeString,
				"description":        TypeText,
				"product_manager_id": TypeUUID,
				"length":             TypeNumeric,
				"height":             TypeNumeric,
				"width":              TypeNumeric,
				"weight":             TypeNumeric,
				"image_url":          TypeString,
				"price":              TypeNumeric,
				"stock_quantity":     TypeInteger,
				"is_active":          TypeBoolean,
				"notes":              TypeText,
				"created_at":         TypeTimestamp,
				"updated_at":         TypeTimestamp,
			},
			Operations: map[domain.OperationKind]bool{
				domain.OpCreate: true,
				domain.OpRead:   true,
				domain.OpUpdate: true,
				domain.OpDelete: true,
			},
		},
	}}
}

// Entity looks up a whitelisted entity by name.
func (d *Descriptor) Entity(name string) (Entity, bool) {
	e, ok := d.entities[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// EntityNames returns the whitelist in stable order.
func (d *Descriptor) EntityNames() []string {
	names := make([]string, 0, len(d.entities))
	for n := range d.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PromptDescription renders the whitelist for the language model prompt.
func (d *Descriptor) PromptDescription() string {
	var sb strings.Builder
	for _, name := range d.EntityNames() {
		e := d.entities[name]
		ops := make([]string, 0, len(e.Operations))
		for op, ok := range e.Operations {
			if ok {
				ops = append(ops, string(op))
			}
		}
		sort.Strings(ops)
		fmt.Fprintf(&sb, "Table: %s (operations: %s)\nColumns:\n", e.Name, strings.Join(ops, ", "))
		for _, f := range e.FieldNames() {
			fmt.Fprintf(&sb, "- %s (%s)\n", f, e.Fields[f])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
