package registry

import (
	"fmt"
	"regexp"
	"sync"

	"attach_server/server/attachments/permission"
	"attach_server/server/attachments/validate"
)

var ownerTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ModelSpec configures one concrete attachment model for an owner type.
type ModelSpec struct {
	// OwnerType names the owner entity and becomes the route namespace
	// segment. Lowercase identifier, e.g. "notes".
	OwnerType string
	// OwnerTable is the table owner-existence checks query. Defaults to
	// OwnerType.
	OwnerTable string
	// Policy defaults to permission.Default.
	Policy permission.Policy
	// Checks are model-specific upload validators, run after the registry's
	// configured defaults.
	Checks []validate.Check
}

// Model is the concrete attachment type produced for one owner type: its own
// table, owner table, policy and validator sequence.
type Model struct {
	OwnerType  string
	Table      string
	OwnerTable string
	Policy     permission.Policy
	Checks     []validate.Check
}

// Registry produces and holds attachment models. Registering the same owner
// type again returns the existing model unchanged, so repeated configuration
// never produces duplicate tables or routes.
type Registry struct {
	mu       sync.RWMutex
	defaults []validate.Check
	models   map[string]*Model
}

// New creates a registry whose default checks prefix every model's validator
// sequence.
func New(defaults ...validate.Check) *Registry {
	return &Registry{defaults: defaults, models: map[string]*Model{}}
}

func (r *Registry) Register(spec ModelSpec) (*Model, error) {
	if !ownerTypePattern.MatchString(spec.OwnerType) {
		return nil, fmt.Errorf("invalid owner type %q", spec.OwnerType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[spec.OwnerType]; ok {
		return existing, nil
	}

	ownerTable := spec.OwnerTable
	if ownerTable == "" {
		ownerTable = spec.OwnerType
	}
	policy := spec.Policy
	if policy == nil {
		policy = permission.Default{}
	}
	checks := make([]validate.Check, 0, len(r.defaults)+len(spec.Checks))
	checks = append(checks, r.defaults...)
	checks = append(checks, spec.Checks...)

	model := &Model{
		OwnerType:  spec.OwnerType,
		Table:      spec.OwnerType + "_attachments",
		OwnerTable: ownerTable,
		Policy:     policy,
		Checks:     checks,
	}
	r.models[spec.OwnerType] = model
	return model, nil
}

func (r *Registry) Lookup(ownerType string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.models[ownerType]
	return model, ok
}

func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*Model, 0, len(r.models))
	for _, model := range r.models {
		models = append(models, model)
	}
	return models
}
