package registry

import (
	"mime/multipart"
	"testing"

	"attach_server/server/attachments/permission"
	"attach_server/server/attachments/validate"
)

func TestRegisterDefaults(t *testing.T) {
	reg := New()
	model, err := reg.Register(ModelSpec{OwnerType: "tickets"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if model.Table != "tickets_attachments" {
		t.Errorf("table = %q, want tickets_attachments", model.Table)
	}
	if model.OwnerTable != "tickets" {
		t.Errorf("owner table = %q, want tickets", model.OwnerTable)
	}
	if _, ok := model.Policy.(permission.Default); !ok {
		t.Errorf("policy = %T, want permission.Default", model.Policy)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	reg := New()
	first, err := reg.Register(ModelSpec{OwnerType: "notes"})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := reg.Register(ModelSpec{OwnerType: "notes", OwnerTable: "something_else"})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if first != second {
		t.Error("re-registering the same owner type must return the existing model")
	}
	if second.OwnerTable != "notes" {
		t.Errorf("existing model must be unchanged, owner table became %q", second.OwnerTable)
	}
	if len(reg.Models()) != 1 {
		t.Errorf("expected 1 registered model, got %d", len(reg.Models()))
	}
}

func TestRegisterInvalidOwnerType(t *testing.T) {
	tests := []struct {
		name      string
		ownerType string
	}{
		{"empty", ""},
		{"uppercase", "Notes"},
		{"leading digit", "1notes"},
		{"path characters", "notes/extra"},
		{"sql injection shaped", "notes; drop table"},
	}

	reg := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := reg.Register(ModelSpec{OwnerType: tt.ownerType}); err == nil {
				t.Errorf("Register(%q) should fail", tt.ownerType)
			}
		})
	}
}

func TestRegisterCheckOrdering(t *testing.T) {
	var order []string
	mark := func(name string) validate.Check {
		return func(*multipart.FileHeader) error {
			order = append(order, name)
			return nil
		}
	}

	reg := New(mark("default1"), mark("default2"))
	model, err := reg.Register(ModelSpec{OwnerType: "notes", Checks: []validate.Check{mark("custom")}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	fh := &multipart.FileHeader{Filename: "f"}
	if err := validate.RunAll(fh, model.Checks); err != nil {
		t.Fatalf("run checks: %v", err)
	}
	want := []string{"default1", "default2", "custom"}
	if len(order) != len(want) {
		t.Fatalf("ran %d checks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("check %d ran as %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRegisterCustomPolicy(t *testing.T) {
	type denyAll struct{ permission.Default }
	reg := New()
	model, err := reg.Register(ModelSpec{OwnerType: "notes", Policy: denyAll{}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := model.Policy.(denyAll); !ok {
		t.Errorf("policy = %T, want the supplied custom policy", model.Policy)
	}
}
