package search_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/okarinen/voicepick/internal/catalog"
	"github.com/okarinen/voicepick/internal/match"
	"github.com/okarinen/voicepick/internal/search"
	"github.com/okarinen/voicepick/pkg/recognizer"
	"github.com/okarinen/voicepick/pkg/recognizer/mock"
)

const waitTimeout = 2 * time.Second

type fixture struct {
	provider   *mock.Provider
	controller *search.Controller
}

func newFixture(t *testing.T, errWindow time.Duration) *fixture {
	t.Helper()
	cat, err := catalog.New([]catalog.Record{
		{ID: "plumbing", Name: "Plumbers & Home Repair"},
		{ID: "hotels", Name: "Hotels & Travel"},
		{ID: "electricians", Name: "Electricians"},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	p := mock.NewProvider()
	ctrl := search.NewController(search.Config{
		Catalog:            cat,
		Session:            recognizer.NewSession(p),
		Matcher:            match.New(),
		ErrorDisplayWindow: errWindow,
	})
	return &fixture{provider: p, controller: ctrl}
}

func (f *fixture) waitState(t *testing.T, want search.State) search.Snapshot {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if snap := f.controller.Snapshot(); snap.State == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("controller state = %q, want %q", f.controller.Snapshot().State, want)
	return search.Snapshot{}
}

// speak drives a full voice turn: start, final transcript, wait for idle.
func (f *fixture) speak(t *testing.T, transcript string) search.Snapshot {
	t.Helper()
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	f.provider.LastHandle().Emit(recognizer.Result{Transcript: transcript, IsFinal: true, Confidence: 0.9})
	return f.waitState(t, search.StateIdle)
}

func TestVoiceTurn_MatchAccumulates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	snap := f.speak(t, "I need a plumber for a repair")

	if got := snap.SelectedIDs; !reflect.DeepEqual(got, []string{"plumbing"}) {
		t.Errorf("SelectedIDs = %v, want [plumbing]", got)
	}
}

func TestVoiceTurns_SequentialAccumulate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.speak(t, "plumbers")
	snap := f.speak(t, "hotels")

	if got := snap.SelectedIDs; !reflect.DeepEqual(got, []string{"plumbing", "hotels"}) {
		t.Errorf("SelectedIDs after two turns = %v, want [plumbing hotels]", got)
	}
}

func TestVoiceTurn_InterimTranscriptVisible(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	f.provider.LastHandle().Emit(recognizer.Result{Transcript: "plum", IsFinal: false})

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if snap := f.controller.Snapshot(); snap.InterimTranscript == "plum" {
			if snap.State != search.StateListening {
				t.Errorf("state = %q with interim visible, want listening", snap.State)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("interim transcript never surfaced in the snapshot")
}

func TestStartListening_WhileActiveIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("first StartListening: %v", err)
	}
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("second StartListening: %v", err)
	}
	if f.provider.CallCountOpen != 1 {
		t.Errorf("provider opened %d sessions, want 1", f.provider.CallCountOpen)
	}
}

func TestStartListening_Unsupported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 50*time.Millisecond)
	f.provider.SupportedResult = false

	err := f.controller.StartListening(context.Background())
	if !errors.Is(err, recognizer.ErrUnsupported) {
		t.Fatalf("StartListening error = %v, want ErrUnsupported", err)
	}
	if f.controller.Supported() {
		t.Error("Supported() = true with an unsupported provider")
	}

	snap := f.controller.Snapshot()
	if snap.State != search.StateError || snap.ErrorMessage == "" {
		t.Errorf("snapshot = %+v, want error state with a message", snap)
	}
	f.waitState(t, search.StateIdle)
}

func TestRecognizerError_FlashesAndSelfClears(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 50*time.Millisecond)
	f.speak(t, "plumbers")

	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	f.provider.LastHandle().EmitError(errors.New("network failure"))

	snap := f.waitState(t, search.StateError)
	if snap.ErrorMessage != "network failure" {
		t.Errorf("ErrorMessage = %q, want the recognizer message", snap.ErrorMessage)
	}
	// The aborted turn must not touch the selection.
	if got := snap.SelectedIDs; !reflect.DeepEqual(got, []string{"plumbing"}) {
		t.Errorf("SelectedIDs = %v, want [plumbing] untouched", got)
	}

	snap = f.waitState(t, search.StateIdle)
	if snap.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q after self-clear, want empty", snap.ErrorMessage)
	}
}

func TestStopListening_DiscardsLateResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	h := f.provider.LastHandle()
	f.controller.StopListening()

	h.Emit(recognizer.Result{Transcript: "plumbers", IsFinal: true})
	time.Sleep(50 * time.Millisecond)

	snap := f.controller.Snapshot()
	if snap.State != search.StateIdle {
		t.Errorf("state = %q, want idle", snap.State)
	}
	if len(snap.SelectedIDs) != 0 {
		t.Errorf("late result mutated selection: %v", snap.SelectedIDs)
	}
}

func TestStopListening_DismissesError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Hour)
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	f.provider.LastHandle().EmitError(errors.New("boom"))
	f.waitState(t, search.StateError)

	f.controller.StopListening()
	snap := f.controller.Snapshot()
	if snap.State != search.StateIdle || snap.ErrorMessage != "" {
		t.Errorf("snapshot after stop = %+v, want idle with no error", snap)
	}
}

func TestVoiceTurn_FallbackViewOnNoMatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	// "el" is below the token length floor, so the matcher finds nothing and
	// the raw transcript degrades to a substring filter over the catalog.
	snap := f.speak(t, "el")

	var ids []string
	for _, r := range snap.Suggestions {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"hotels", "electricians"}) {
		t.Errorf("fallback suggestions = %v, want [hotels electricians]", ids)
	}
	if len(snap.SelectedIDs) != 0 {
		t.Errorf("no-match turn mutated selection: %v", snap.SelectedIDs)
	}

	// Typing afterwards replaces the fallback view.
	f.controller.SetQuery("")
	snap = f.controller.Snapshot()
	if len(snap.Suggestions) != 3 {
		t.Errorf("suggestions after SetQuery = %d records, want full catalog", len(snap.Suggestions))
	}
}

func TestVoiceTurn_NoMatchNoFallbackShowsEmptyView(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	snap := f.speak(t, "xylophone")

	if snap.Suggestions == nil || len(snap.Suggestions) != 0 {
		t.Errorf("suggestions = %v, want an explicit empty view", snap.Suggestions)
	}
}

func TestVoiceTurn_EmptyTranscriptLeavesViewAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	snap := f.speak(t, "   ")

	if len(snap.Suggestions) != 3 {
		t.Errorf("suggestions = %d records after empty transcript, want full catalog", len(snap.Suggestions))
	}
}

func TestSetQuery_FiltersSuggestions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.controller.SetQuery("hot")

	snap := f.controller.Snapshot()
	if len(snap.Suggestions) != 1 || snap.Suggestions[0].ID != "hotels" {
		t.Errorf("suggestions for %q = %v", "hot", snap.Suggestions)
	}
}

func TestToggleCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	if err := f.controller.ToggleCategory("hotels"); err != nil {
		t.Fatalf("ToggleCategory: %v", err)
	}
	if got := f.controller.Snapshot().SelectedIDs; !reflect.DeepEqual(got, []string{"hotels"}) {
		t.Errorf("SelectedIDs = %v, want [hotels]", got)
	}

	if err := f.controller.ToggleCategory("hotels"); err != nil {
		t.Fatalf("ToggleCategory: %v", err)
	}
	if got := f.controller.Snapshot().SelectedIDs; len(got) != 0 {
		t.Errorf("SelectedIDs after second toggle = %v, want empty", got)
	}

	if err := f.controller.ToggleCategory("ghost"); !errors.Is(err, search.ErrUnknownCategory) {
		t.Errorf("ToggleCategory(ghost) = %v, want ErrUnknownCategory", err)
	}
}

func TestVoiceAndToggle_Combine(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.speak(t, "plumbers")
	if err := f.controller.ToggleCategory("electricians"); err != nil {
		t.Fatalf("ToggleCategory: %v", err)
	}

	got := f.controller.Snapshot().SelectedIDs
	if !reflect.DeepEqual(got, []string{"plumbing", "electricians"}) {
		t.Errorf("SelectedIDs = %v, want [plumbing electricians]", got)
	}
}

func TestClearSelection_ResetsEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.speak(t, "plumbers")
	f.controller.SetQuery("hot")
	f.controller.ClearSelection()

	snap := f.controller.Snapshot()
	if len(snap.SelectedIDs) != 0 {
		t.Errorf("SelectedIDs = %v after clear, want empty", snap.SelectedIDs)
	}
	if len(snap.Suggestions) != 3 {
		t.Errorf("suggestions = %d records after clear, want full catalog", len(snap.Suggestions))
	}
}

func TestClearSelection_CancelsActiveTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	if err := f.controller.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	h := f.provider.LastHandle()
	f.controller.ClearSelection()

	// A result from the cancelled turn must not resurrect state.
	h.Emit(recognizer.Result{Transcript: "plumbers", IsFinal: true})
	time.Sleep(50 * time.Millisecond)

	snap := f.controller.Snapshot()
	if snap.State != search.StateIdle || len(snap.SelectedIDs) != 0 {
		t.Errorf("snapshot = %+v, want idle and empty selection", snap)
	}
}

func TestReplaceCatalog_PrunesStaleSelection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.speak(t, "plumbers")
	if err := f.controller.ToggleCategory("hotels"); err != nil {
		t.Fatalf("ToggleCategory: %v", err)
	}

	next, err := catalog.New([]catalog.Record{
		{ID: "hotels", Name: "Hotels & Travel"},
		{ID: "catering", Name: "Catering"},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	f.controller.ReplaceCatalog(next)

	snap := f.controller.Snapshot()
	if got := snap.SelectedIDs; !reflect.DeepEqual(got, []string{"hotels"}) {
		t.Errorf("SelectedIDs = %v after reload, want [hotels]", got)
	}
	if len(snap.Suggestions) != 2 {
		t.Errorf("suggestions = %d records, want the 2 reloaded categories", len(snap.Suggestions))
	}

	// The old ids are gone for manual toggles too.
	if err := f.controller.ToggleCategory("plumbing"); !errors.Is(err, search.ErrUnknownCategory) {
		t.Errorf("ToggleCategory(plumbing) = %v, want ErrUnknownCategory", err)
	}
	if err := f.controller.ToggleCategory("catering"); err != nil {
		t.Errorf("ToggleCategory(catering) = %v", err)
	}
}

func TestContinue_HandsOffAndResets(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.speak(t, "plumbers and hotels")

	ids := f.controller.Continue()
	if !reflect.DeepEqual(ids, []string{"plumbing", "hotels"}) {
		t.Errorf("Continue = %v, want [plumbing hotels]", ids)
	}
	if got := f.controller.Snapshot().SelectedIDs; len(got) != 0 {
		t.Errorf("SelectedIDs after Continue = %v, want empty", got)
	}
}
