package stagegate

import (
	"fmt"

	"github.com/tmattila/stagegate/pkg/api"
)

// TemplateBuilder provides a fluent API for defining workflow templates:
//
//	tpl, err := stagegate.NewTemplate("bmad", "v1").
//	    Stage("qualification", "Qualification", "design").
//	    Stage("design", "Design", "build").
//	    Stage("build", "Build", "deliver").
//	    Stage("deliver", "Deliver").
//	    Gate("qual-review", "Qualification Review", "qualification").
//	    Gate("design-review", "Design Review", "design").
//	    Build()
//
//	if err := engine.RegisterTemplate(tpl); err != nil {
//	    log.Fatal(err)
//	}
type TemplateBuilder struct {
	tpl api.WorkflowTemplate
}

// NewTemplate creates a template builder with the given ID and version.
// An empty version defaults to "v1" at registration time.
func NewTemplate(id, version string) *TemplateBuilder {
	return &TemplateBuilder{
		tpl: api.WorkflowTemplate{
			ID:      id,
			Version: version,
		},
	}
}

// Start declares the entry stage explicitly. When omitted, Build infers
// it as the unique stage with no incoming edges.
func (b *TemplateBuilder) Start(stageID string) *TemplateBuilder {
	b.tpl.Start = stageID
	return b
}

// Stage appends a stage with the given allowed next stages. A stage with
// no next stages is terminal.
func (b *TemplateBuilder) Stage(id, name string, next ...string) *TemplateBuilder {
	if id == "" {
		panic("stagegate: stage id must not be empty")
	}
	b.tpl.Stages = append(b.tpl.Stages, api.Stage{
		ID:   id,
		Name: name,
		Next: next,
	})
	return b
}

// Gate appends a gate guarding the given stage.
func (b *TemplateBuilder) Gate(id, name, stageID string) *TemplateBuilder {
	if id == "" {
		panic("stagegate: gate id must not be empty")
	}
	if stageID == "" {
		panic(fmt.Sprintf("stagegate: gate %q has empty stage id", id))
	}
	b.tpl.Gates = append(b.tpl.Gates, api.Gate{
		ID:      id,
		Name:    name,
		StageID: stageID,
	})
	return b
}

// GateAfter appends a gate guarding the given stage that may only be
// decided once the listed gates are approved.
func (b *TemplateBuilder) GateAfter(id, name, stageID string, dependsOn ...string) *TemplateBuilder {
	if id == "" {
		panic("stagegate: gate id must not be empty")
	}
	if stageID == "" {
		panic(fmt.Sprintf("stagegate: gate %q has empty stage id", id))
	}
	b.tpl.Gates = append(b.tpl.Gates, api.Gate{
		ID:        id,
		Name:      name,
		StageID:   stageID,
		DependsOn: dependsOn,
	})
	return b
}

// Build validates the assembled template and returns it. The builder can
// be discarded afterwards; the template is independent of it.
func (b *TemplateBuilder) Build() (*WorkflowTemplate, error) {
	t := b.tpl
	t.Stages = append([]api.Stage(nil), b.tpl.Stages...)
	t.Gates = append([]api.Gate(nil), b.tpl.Gates...)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// MustBuild is Build that panics on validation errors. Intended for
// templates assembled from literals at program start.
func (b *TemplateBuilder) MustBuild() *WorkflowTemplate {
	t, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("stagegate: invalid template %q: %v", b.tpl.ID, err))
	}
	return t
}
