package stagegate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/tmattila/stagegate"
)

// Example_templateBuilder demonstrates defining a gated workflow with the
// TemplateBuilder API and walking an instance through it.
func Example_templateBuilder() {
	ctx := context.Background()

	tpl := stagegate.NewTemplate("onboarding", "v1").
		Stage("screening", "Screening", "interview").
		Stage("interview", "Interview", "offer").
		Stage("offer", "Offer").
		Gate("cv-review", "CV Review", "screening").
		MustBuild()

	eng := stagegate.NewInMemoryEngine()
	if err := eng.RegisterTemplate(tpl); err != nil {
		log.Fatal(err)
	}

	inst, err := eng.CreateInstance(ctx, "candidate-42", "onboarding", "v1", "recruiter")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stage:", inst.CurrentStageID)

	if _, err := stagegate.Approve(ctx, eng, "candidate-42", "cv-review", "hiring-manager", "strong profile"); err != nil {
		log.Fatal(err)
	}
	inst, err = eng.AdvanceStage(ctx, "candidate-42", "interview", "recruiter")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stage:", inst.CurrentStageID)
	fmt.Println("status:", inst.Status)

	// Output:
	// stage: screening
	// stage: interview
	// status: ACTIVE
}

// Example_auditTrail shows the append-only event history kept for every
// instance and how it replays back to the live state.
func Example_auditTrail() {
	ctx := context.Background()

	tpl := stagegate.NewTemplate("release", "v1").
		Stage("staging", "Staging", "production").
		Stage("production", "Production").
		Gate("qa-signoff", "QA Signoff", "staging").
		MustBuild()

	eng := stagegate.NewInMemoryEngine()
	if err := eng.RegisterTemplate(tpl); err != nil {
		log.Fatal(err)
	}
	if _, err := eng.CreateInstance(ctx, "release-7", "release", "v1", "release-bot"); err != nil {
		log.Fatal(err)
	}
	if _, err := stagegate.Reject(ctx, eng, "release-7", "qa-signoff", "qa", "flaky checkout test"); err != nil {
		log.Fatal(err)
	}
	if _, err := stagegate.Approve(ctx, eng, "release-7", "qa-signoff", "qa", "test quarantined"); err != nil {
		log.Fatal(err)
	}
	if _, err := eng.AdvanceStage(ctx, "release-7", "production", "release-bot"); err != nil {
		log.Fatal(err)
	}

	events, err := eng.ListEvents(ctx, "release-7", 0)
	if err != nil {
		log.Fatal(err)
	}
	for _, ev := range events {
		fmt.Printf("%d %s\n", ev.ID, ev.Type)
	}

	replayed, err := stagegate.Replay(tpl, "release-7", events)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("replayed status:", replayed.Status)

	// Output:
	// 1 INSTANCE_CREATED
	// 2 GATE_REJECTED
	// 3 GATE_APPROVED
	// 4 STAGE_ADVANCED
	// replayed status: COMPLETED
}
