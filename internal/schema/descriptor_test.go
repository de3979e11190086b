package schema

import (
	"strings"
	"testing"

	"github.com/chatquery/chatquery/internal/domain"
)

func TestDescriptorEntityLookup(t *testing.T) {
	d := Default()

	if _, ok := d.Entity("products"); !ok {
		t.Fatal("products should be whitelisted")
	}
	if _, ok := d.Entity("  Employees "); !ok {
		t.Fatal("entity lookup should trim and lowercase")
	}
	if _, ok := d.Entity("message_logs"); ok {
		t.Fatal("message_logs must not be queryable")
	}
	if _, ok := d.Entity("credentials"); ok {
		t.Fatal("credentials must not be queryable")
	}
}

func TestDescriptorExcludesPasswordColumn(t *testing.T) {
	d := Default()
	e, _ := d.Entity("employees")
	if _, ok := e.Fields["hashed_password"]; ok {
		t.Fatal("hashed_password must not be whitelisted")
	}
}

func TestPromptDescriptionListsTables(t *testing.T) {
	desc := Default().PromptDescription()
	for _, want := range []string{"Table: employees", "Table: products", "price (numeric)", "stock_quantity (integer)"} {
		if !strings.Contains(desc, want) {
			t.Fatalf("prompt description missing %q:\n%s", want, desc)
		}
	}
}

func TestScopeFor(t *testing.T) {
	cases := []struct {
		role   domain.Role
		entity string
		kind   domain.OperationKind
		want   bool
	}{
		{domain.RoleAdmin, "employees", domain.OpDelete, true},
		{domain.RoleAdmin, "products", domain.OpCreate, true},
		{domain.RoleGeneralUser, "employees", domain.OpRead, true},
		{domain.RoleGeneralUser, "employees", domain.OpDelete, false},
		{domain.RoleGeneralUser, "employees", domain.OpUpdate, false},
		{domain.RoleGeneralUser, "products", domain.OpUpdate, true},
		{domain.RoleGeneralUser, "products", domain.OpDelete, false},
		{domain.Role("intruder"), "products", domain.OpRead, false},
	}

	for _, c := range cases {
		got := ScopeFor(c.role).Allows(c.entity, c.kind)
		if got != c.want {
			t.Fatalf("ScopeFor(%s).Allows(%s, %s)=%v; want %v", c.role, c.entity, c.kind, got, c.want)
		}
	}
}
