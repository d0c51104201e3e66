package api

import "fmt"

// Stage is a named step in a workflow template. A workflow instance
// occupies exactly one stage at any time.
type Stage struct {
	ID   string
	Name string

	// Next lists the stage IDs an instance may advance to from this stage.
	// A stage with no outgoing edges is terminal: advancing into it
	// completes the instance.
	Next []string
}

// Gate is a named approval checkpoint guarding transition out of a stage.
type Gate struct {
	ID   string
	Name string

	// StageID is the stage this gate guards. The gate can only be decided
	// while the instance occupies that stage, and the stage cannot be left
	// through AdvanceStage until the gate is approved.
	StageID string

	// DependsOn lists gate IDs that must already be approved before this
	// gate may be decided.
	DependsOn []string
}

// WorkflowTemplate is an immutable workflow definition: an ordered set of
// stages connected by allowed-transition edges, plus the gates guarding
// them. Templates are versioned by ID + Version and shared read-only by
// every instance that references them.
//
// Templates must pass Validate before being registered with an engine;
// the template loader and TemplateBuilder both enforce this.
type WorkflowTemplate struct {
	ID      string
	Version string

	// Start is the entry stage for new instances. When left empty,
	// Validate infers it as the unique stage with no incoming edges.
	Start string

	Stages []Stage
	Gates  []Gate
}

// StageByID returns the stage with the given ID, or false if absent.
func (t *WorkflowTemplate) StageByID(id string) (Stage, bool) {
	for _, s := range t.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// GateByID returns the gate with the given ID, or false if absent.
func (t *WorkflowTemplate) GateByID(id string) (Gate, bool) {
	for _, g := range t.Gates {
		if g.ID == id {
			return g, true
		}
	}
	return Gate{}, false
}

// GatesFor returns the gates guarding the given stage, in template order.
func (t *WorkflowTemplate) GatesFor(stageID string) []Gate {
	var out []Gate
	for _, g := range t.Gates {
		if g.StageID == stageID {
			out = append(out, g)
		}
	}
	return out
}

// HasEdge reports whether from -> to is an allowed transition.
func (t *WorkflowTemplate) HasEdge(from, to string) bool {
	s, ok := t.StageByID(from)
	if !ok {
		return false
	}
	for _, next := range s.Next {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the stage has no outgoing edges.
// Unknown stage IDs are not terminal.
func (t *WorkflowTemplate) IsTerminal(stageID string) bool {
	s, ok := t.StageByID(stageID)
	if !ok {
		return false
	}
	return len(s.Next) == 0
}

// Validate checks the template for structural and ordering errors and
// resolves the start stage. It returns an error wrapping
// ErrMalformedTemplate for missing/duplicate IDs, dangling references and
// cyclic gate dependencies, and an error wrapping ErrTemplateValidation
// when the stage graph is contradictory (no unique start, unreachable
// stages).
func (t *WorkflowTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: template id is required", ErrMalformedTemplate)
	}
	if len(t.Stages) == 0 {
		return fmt.Errorf("%w: template %q has no stages", ErrMalformedTemplate, t.ID)
	}

	stageIDs := make(map[string]bool, len(t.Stages))
	for _, s := range t.Stages {
		if s.ID == "" {
			return fmt.Errorf("%w: stage with empty id", ErrMalformedTemplate)
		}
		if stageIDs[s.ID] {
			return fmt.Errorf("%w: duplicate stage id %q", ErrMalformedTemplate, s.ID)
		}
		stageIDs[s.ID] = true
	}

	incoming := make(map[string]int, len(t.Stages))
	for _, s := range t.Stages {
		for _, next := range s.Next {
			if !stageIDs[next] {
				return fmt.Errorf("%w: stage %q references unknown stage %q", ErrMalformedTemplate, s.ID, next)
			}
			if next == s.ID {
				return fmt.Errorf("%w: stage %q has a self edge", ErrMalformedTemplate, s.ID)
			}
			incoming[next]++
		}
	}

	gateIDs := make(map[string]bool, len(t.Gates))
	for _, g := range t.Gates {
		if g.ID == "" {
			return fmt.Errorf("%w: gate with empty id", ErrMalformedTemplate)
		}
		if gateIDs[g.ID] {
			return fmt.Errorf("%w: duplicate gate id %q", ErrMalformedTemplate, g.ID)
		}
		gateIDs[g.ID] = true
		if !stageIDs[g.StageID] {
			return fmt.Errorf("%w: gate %q guards unknown stage %q", ErrMalformedTemplate, g.ID, g.StageID)
		}
	}
	for _, g := range t.Gates {
		for _, dep := range g.DependsOn {
			if !gateIDs[dep] {
				return fmt.Errorf("%w: gate %q depends on unknown gate %q", ErrMalformedTemplate, g.ID, dep)
			}
		}
	}
	if err := t.checkGateCycles(); err != nil {
		return err
	}

	// Resolve the start stage: either the declared one, or the unique
	// stage with no incoming edges. A declared start may have incoming
	// edges (rework loops back to the first stage are legal); inference
	// needs a unique zero-incoming stage to be unambiguous.
	if t.Start != "" {
		if !stageIDs[t.Start] {
			return fmt.Errorf("%w: start stage %q does not exist", ErrTemplateValidation, t.Start)
		}
	} else {
		var roots []string
		for _, s := range t.Stages {
			if incoming[s.ID] == 0 {
				roots = append(roots, s.ID)
			}
		}
		if len(roots) != 1 {
			return fmt.Errorf("%w: template %q needs exactly one start stage, found %d", ErrTemplateValidation, t.ID, len(roots))
		}
		t.Start = roots[0]
	}

	// Every stage must be reachable from the start stage.
	reached := map[string]bool{t.Start: true}
	frontier := []string{t.Start}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		s, _ := t.StageByID(id)
		for _, next := range s.Next {
			if !reached[next] {
				reached[next] = true
				frontier = append(frontier, next)
			}
		}
	}
	for _, s := range t.Stages {
		if !reached[s.ID] {
			return fmt.Errorf("%w: stage %q is unreachable from start stage %q", ErrTemplateValidation, s.ID, t.Start)
		}
	}

	return nil
}

// checkGateCycles rejects cyclic gate dependency chains with a three-color
// depth-first search.
func (t *WorkflowTemplate) checkGateCycles() error {
	const (
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(t.Gates))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("%w: cyclic gate dependency involving %q", ErrMalformedTemplate, id)
		case black:
			return nil
		}
		color[id] = grey
		g, _ := t.GateByID(id)
		for _, dep := range g.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, g := range t.Gates {
		if err := visit(g.ID); err != nil {
			return err
		}
	}
	return nil
}
