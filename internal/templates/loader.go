// Package templates parses workflow template definitions into validated,
// immutable api.WorkflowTemplate graphs. Parsing has no side effects;
// persisting templates is the calling layer's concern.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tmattila/stagegate/pkg/api"
)

// templateDoc is the YAML shape of a workflow template definition:
//
//	id: bmad
//	version: v1
//	stages:
//	  - id: qualification
//	    name: Qualification
//	    next: [design]
//	  - id: design
//	    name: Design
//	gates:
//	  - id: g1
//	    name: Qualification Review
//	    stage: qualification
type templateDoc struct {
	ID      string     `yaml:"id"`
	Version string     `yaml:"version"`
	Start   string     `yaml:"start"`
	Stages  []stageDoc `yaml:"stages"`
	Gates   []gateDoc  `yaml:"gates"`
}

type stageDoc struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	Next []string `yaml:"next"`
}

type gateDoc struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Stage     string   `yaml:"stage"`
	DependsOn []string `yaml:"depends_on"`
}

// Load parses a YAML template definition and validates the resulting
// graph. Unknown YAML fields are rejected, so typos in hand-written
// definitions fail loudly instead of silently dropping a gate.
func Load(src []byte) (*api.WorkflowTemplate, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var doc templateDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty definition", api.ErrMalformedTemplate)
		}
		return nil, fmt.Errorf("%w: %v", api.ErrMalformedTemplate, err)
	}

	t := &api.WorkflowTemplate{
		ID:      doc.ID,
		Version: doc.Version,
		Start:   doc.Start,
	}
	for _, s := range doc.Stages {
		t.Stages = append(t.Stages, api.Stage{
			ID:   s.ID,
			Name: s.Name,
			Next: s.Next,
		})
	}
	for _, g := range doc.Gates {
		t.Gates = append(t.Gates, api.Gate{
			ID:        g.ID,
			Name:      g.Name,
			StageID:   g.Stage,
			DependsOn: g.DependsOn,
		})
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}
