package vu

import (
	"context"
	"testing"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/scripthost"
	"github.com/nogcio/wrkr/internal/value"
)

// fakeHost lets a test iteration body reach back into the VUContext it was
// handed, the way a real script's group()/check() calls would.
type fakeHost struct {
	fn func(ctx context.Context, vu scripthost.VUContext) error
}

func (h *fakeHost) ParseOptions(ctx context.Context, scriptPath string) (scripthost.ParseResult, error) {
	return scripthost.ParseResult{}, nil
}
func (h *fakeHost) Setup(ctx context.Context) error    { return nil }
func (h *fakeHost) Teardown(ctx context.Context) error { return nil }
func (h *fakeHost) Iteration(ctx context.Context, fnName string, vu scripthost.VUContext) (scripthost.IterationResult, error) {
	if err := h.fn(ctx, vu); err != nil {
		return scripthost.IterationResult{ScriptErr: err}, nil
	}
	return scripthost.IterationResult{}, nil
}
func (h *fakeHost) HandleSummary(ctx context.Context, summary scripthost.Summary) (map[string][]byte, error) {
	return nil, nil
}

func TestTagsReservedNamesOverrideUserTags(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	userTags := value.NewTags().With("scenario", value.TagString("spoofed")).With("group", value.TagString("spoofed"))
	v := New(1, "checkout", &fakeHost{}, eng, userTags)

	tags := v.Tags()
	got, _ := tags.Get("scenario")
	if got.String() != "checkout" {
		t.Errorf("scenario tag = %q, want %q (engine value must win over a user-supplied one)", got.String(), "checkout")
	}
}

func TestTagsUserGroupSurvivesWithNoActiveScope(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	userTags := value.NewTags().With("group", value.TagString("manual"))
	v := New(1, "checkout", &fakeHost{}, eng, userTags)

	got, ok := v.Tags().Get("group")
	if !ok || got.String() != "manual" {
		t.Errorf("group tag = %q, %v; want the user value when no group is active", got.String(), ok)
	}
}

func TestTagsActiveGroupOverridesUserGroup(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	userTags := value.NewTags().With("group", value.TagString("manual"))
	v := New(1, "checkout", &fakeHost{}, eng, userTags)

	if _, err := v.PushGroup("login"); err != nil {
		t.Fatalf("PushGroup: %v", err)
	}
	defer v.PopGroup()

	got, _ := v.Tags().Get("group")
	if got.String() != "login" {
		t.Errorf("group tag = %q, want %q (the active scope must win over a user-set group)", got.String(), "login")
	}
}

func TestRunIterationThreadsVUContextForGroupsAndChecks(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	host := &fakeHost{fn: func(ctx context.Context, vc scripthost.VUContext) error {
		name, err := vc.PushGroup("login")
		if err != nil {
			return err
		}
		defer vc.PopGroup()
		if name != "login" {
			t.Errorf("PushGroup returned %q, want %q", name, "login")
		}
		vc.RecordCheck("status is 200", true)
		return nil
	}}

	v := New(1, "checkout", host, eng, value.NewTags())
	if err := v.RunIteration(context.Background(), "default"); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}

	var found bool
	for _, s := range eng.AllSeries() {
		if s.Name != "checks" {
			continue
		}
		if g, ok := s.Tags.Get("group"); ok && g.String() == "login" {
			found = true
		}
	}
	if !found {
		t.Error("expected a checks series tagged group=login; the group pushed during Iteration never reached RecordCheck")
	}
}
