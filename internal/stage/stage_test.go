package stage_test

import (
	"testing"
	"time"

	"rematrix/internal/stage"
)

func TestPipelineOrder(t *testing.T) {
	want := []stage.Stage{
		stage.Plan, stage.Outline, stage.Storyboard, stage.Narration,
		stage.Pages, stage.TTS, stage.Render, stage.Merge,
	}
	got := stage.Pipeline()
	if len(got) != len(want) {
		t.Fatalf("pipeline length = %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pipeline[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParse(t *testing.T) {
	if s, ok := stage.Parse(" pages "); !ok || s != stage.Pages {
		t.Fatalf("parse pages = %q, %v", s, ok)
	}
	if _, ok := stage.Parse("SHIPPING"); ok {
		t.Fatal("expected unknown stage to fail")
	}
}

func TestAtOrAfter(t *testing.T) {
	if !stage.Render.AtOrAfter(stage.Plan) {
		t.Fatal("RENDER should be at or after PLAN")
	}
	if stage.Plan.AtOrAfter(stage.Render) {
		t.Fatal("PLAN should not be at or after RENDER")
	}
	if !stage.Done.AtOrAfter(stage.Merge) {
		t.Fatal("DONE should be at or after MERGE")
	}
	if stage.Stage("BOGUS").AtOrAfter(stage.Plan) {
		t.Fatal("unknown stage should compare before everything")
	}
}

func TestNext(t *testing.T) {
	if next := stage.Plan.Next(); next != stage.Outline {
		t.Fatalf("PLAN.Next() = %s", next)
	}
	if next := stage.Merge.Next(); next != stage.Done {
		t.Fatalf("MERGE.Next() = %s", next)
	}
	if next := stage.Done.Next(); next != stage.Done {
		t.Fatalf("DONE.Next() = %s", next)
	}
}

func TestDefinitionsCoverPipeline(t *testing.T) {
	defs := stage.Definitions()
	if len(defs) != len(stage.Pipeline()) {
		t.Fatalf("definitions = %d, pipeline = %d", len(defs), len(stage.Pipeline()))
	}
	for i, s := range stage.Pipeline() {
		if defs[i].Stage != s {
			t.Fatalf("definitions[%d] = %s, want %s", i, defs[i].Stage, s)
		}
	}
	if _, ok := stage.DefinitionFor(stage.Done); ok {
		t.Fatal("DONE must not have a definition")
	}
}

func TestDependenciesPointBackward(t *testing.T) {
	for _, def := range stage.Definitions() {
		for _, dep := range def.DependsOn {
			if dep.Index() >= def.Stage.Index() {
				t.Fatalf("%s depends on %s which is not upstream", def.Stage, dep)
			}
		}
	}
}

func TestGatedStages(t *testing.T) {
	gated := stage.GatedStages()
	if len(gated) != 2 || gated[0] != stage.Plan || gated[1] != stage.Pages {
		t.Fatalf("gated = %v", gated)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := stage.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}

	zero := stage.RetryPolicy{}
	if zero.Delay(3) != 0 {
		t.Fatal("zero policy should not delay")
	}
	if zero.Attempts() != 1 {
		t.Fatalf("zero policy attempts = %d", zero.Attempts())
	}
}
