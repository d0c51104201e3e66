package templates

import (
	"errors"
	"testing"

	"github.com/tmattila/stagegate/pkg/api"
)

const bmadYAML = `
id: bmad
version: v2
start: qualification
stages:
  - id: qualification
    name: Qualification
    next: [design]
  - id: design
    name: Design
    next: [build, qualification]
  - id: build
    name: Build
    next: [deliver]
  - id: deliver
    name: Deliver
gates:
  - id: qual-review
    name: Qualification Review
    stage: qualification
  - id: design-review
    name: Design Review
    stage: design
  - id: security-review
    name: Security Review
    stage: design
    depends_on: [design-review]
`

func TestLoadFullTemplate(t *testing.T) {
	tpl, err := Load([]byte(bmadYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tpl.ID != "bmad" || tpl.Version != "v2" {
		t.Fatalf("identity = %s/%s, want bmad/v2", tpl.ID, tpl.Version)
	}
	if tpl.Start != "qualification" {
		t.Fatalf("start = %q, want qualification", tpl.Start)
	}
	if len(tpl.Stages) != 4 || len(tpl.Gates) != 3 {
		t.Fatalf("got %d stages, %d gates", len(tpl.Stages), len(tpl.Gates))
	}
	if !tpl.HasEdge("design", "qualification") {
		t.Fatal("backward edge design -> qualification lost in parsing")
	}
	g, ok := tpl.GateByID("security-review")
	if !ok {
		t.Fatal("security-review gate missing")
	}
	if g.StageID != "design" {
		t.Fatalf("security-review stage = %q, want design", g.StageID)
	}
	if len(g.DependsOn) != 1 || g.DependsOn[0] != "design-review" {
		t.Fatalf("security-review depends_on = %v", g.DependsOn)
	}
	if !tpl.IsTerminal("deliver") {
		t.Fatal("deliver should be terminal")
	}
}

func TestLoadExplicitStart(t *testing.T) {
	tpl, err := Load([]byte(`
id: simple
start: a
stages:
  - id: a
    next: [b]
  - id: b
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tpl.Start != "a" {
		t.Fatalf("start = %q, want a", tpl.Start)
	}
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"empty document", ``, api.ErrMalformedTemplate},
		{"broken yaml", `stages: [`, api.ErrMalformedTemplate},
		{"unknown field", "id: t\nowner: alice\nstages:\n  - id: a\n", api.ErrMalformedTemplate},
		{"no stages", `id: t`, api.ErrMalformedTemplate},
		{"duplicate stage", "id: t\nstages:\n  - id: a\n  - id: a\n", api.ErrMalformedTemplate},
		{"dangling edge", "id: t\nstages:\n  - id: a\n    next: [ghost]\n", api.ErrMalformedTemplate},
		{"gate on unknown stage", "id: t\nstages:\n  - id: a\ngates:\n  - id: g\n    stage: ghost\n", api.ErrMalformedTemplate},
		{"gate dependency cycle", "id: t\nstages:\n  - id: a\ngates:\n  - id: g1\n    stage: a\n    depends_on: [g2]\n  - id: g2\n    stage: a\n    depends_on: [g1]\n", api.ErrMalformedTemplate},
		{"two start candidates", "id: t\nstages:\n  - id: a\n    next: [c]\n  - id: b\n    next: [c]\n  - id: c\n", api.ErrTemplateValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.src))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}
