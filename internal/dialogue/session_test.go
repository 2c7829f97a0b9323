package dialogue_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chartvox/internal/classify"
	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/lexicon"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/internal/speaker"
	"github.com/MrWong99/chartvox/pkg/types"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// fixture bundles a listening zh-TW session with an in-memory form.
type fixture struct {
	s    *dialogue.Session
	form *sink.Form
	at   time.Time
}

func newFixture(t *testing.T, opts ...dialogue.Option) *fixture {
	t.Helper()
	lex, err := lexicon.Load(lexicon.LangZhTW)
	if err != nil {
		t.Fatalf("lexicon.Load: %v", err)
	}
	p, err := speaker.PatternsFor(lexicon.LangZhTW)
	if err != nil {
		t.Fatalf("PatternsFor: %v", err)
	}
	form := sink.NewForm()
	opts = append([]dialogue.Option{dialogue.WithSink(form), dialogue.WithID("test")}, opts...)
	s := dialogue.New(speaker.New(p), classify.New(lex), opts...)
	s.Start()
	return &fixture{s: s, form: form, at: t0}
}

// say feeds one final utterance, five seconds after the previous one.
func (f *fixture) say(t *testing.T, text string) dialogue.HandleResult {
	t.Helper()
	f.at = f.at.Add(5 * time.Second)
	res, err := f.s.Handle(context.Background(), types.Utterance{Text: text, Timestamp: f.at, IsFinal: true})
	if err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return res
}

func TestSession_DefaultsToPatient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.say(t, "還好")
	if res.Outcome != dialogue.Accepted {
		t.Fatalf("Outcome = %s, want accepted", res.Outcome)
	}
	if res.Turn.Speaker != types.Patient {
		t.Errorf("Speaker = %s, want patient", res.Turn.Speaker)
	}
	if got := f.form.Text(types.ChiefComplaint); got != "還好" {
		t.Errorf("chief complaint = %q, want 還好", got)
	}
}

func TestSession_QuestionAnswerOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	q := f.say(t, "服用什麼藥物?")
	if q.Turn.Speaker != types.Clinician {
		t.Fatalf("question Speaker = %s, want clinician", q.Turn.Speaker)
	}
	if q.Turn.Category != nil || len(q.Commits) != 0 {
		t.Errorf("clinician question committed: %+v", q.Commits)
	}
	if q.Turn.Seeded != types.Medications {
		t.Errorf("Seeded = %s, want Medications", q.Turn.Seeded)
	}
	p := f.s.Pending()
	if p == nil || p.Category != types.Medications {
		t.Fatalf("Pending = %+v, want Medications", p)
	}

	a := f.say(t, "阿斯匹靈")
	if a.Turn.Speaker != types.Patient {
		t.Errorf("answer Speaker = %s, want patient", a.Turn.Speaker)
	}
	if len(a.Commits) != 1 || a.Commits[0].Category != types.Medications {
		t.Fatalf("Commits = %+v, want one Medications commit", a.Commits)
	}
	if a.Commits[0].Text != "阿斯匹靈" || a.Commits[0].SessionID != "test" {
		t.Errorf("commit = %+v", a.Commits[0])
	}
	if f.s.Pending() != nil {
		t.Error("pending question not consumed by the answer")
	}
	if got := f.form.Text(types.Medications); got != "阿斯匹靈" {
		t.Errorf("medications = %q, want 阿斯匹靈", got)
	}
}

func TestSession_OnsetGoesToPresentIllness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.say(t, "大概三天前開始頭痛")
	if res.Turn.Category == nil || *res.Turn.Category != types.PresentIllness {
		t.Fatalf("Category = %v, want PresentIllness", res.Turn.Category)
	}
	if got := f.form.Text(types.PresentIllness); got != "大概三天前開始頭痛" {
		t.Errorf("present illness = %q", got)
	}
}

func TestSession_DuplicateFinal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "頭痛")
	res := f.say(t, " 頭痛 ")
	if res.Outcome != dialogue.Duplicate {
		t.Errorf("second Outcome = %s, want duplicate", res.Outcome)
	}

	st := f.s.Stats()
	if st.Turns != 1 || st.Commits != 1 || st.Duplicates != 1 {
		t.Errorf("Stats = %+v, want 1 turn, 1 commit, 1 duplicate", st)
	}
	if len(f.s.Turns()) != 1 {
		t.Errorf("turn log has %d turns, want 1", len(f.s.Turns()))
	}
}

func TestSession_IdempotentCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "頭痛")
	f.say(t, "還好")
	f.say(t, "頭痛")

	if got := f.form.Text(types.ChiefComplaint); got != "頭痛。還好" {
		t.Errorf("chief complaint = %q, want 頭痛。還好", got)
	}
	if st := f.s.Stats(); st.Commits != 3 {
		t.Errorf("Commits = %d, want 3 (the sink absorbs the repeat)", st.Commits)
	}
}

func TestSession_SentenceSplitting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.say(t, "我頭痛。也有點噁心。")
	if len(res.Commits) != 2 {
		t.Fatalf("Commits = %+v, want 2", res.Commits)
	}
	if got := f.form.Text(types.ChiefComplaint); got != "我頭痛。" {
		t.Errorf("chief complaint = %q", got)
	}
	if got := f.form.Text(types.AccompaniedSymptoms); got != "也有點噁心。" {
		t.Errorf("accompanied symptoms = %q", got)
	}
	if *res.Turn.Category != types.ChiefComplaint {
		t.Errorf("primary Category = %s, want ChiefComplaint", *res.Turn.Category)
	}
}

func TestSession_IgnoredEvents(t *testing.T) {
	t.Parallel()

	var partials []string
	f := newFixture(t, dialogue.WithPartials(func(u types.Utterance) {
		partials = append(partials, u.Text)
	}))
	ctx := context.Background()

	res, _ := f.s.Handle(ctx, types.Utterance{Text: "頭", IsFinal: false})
	if res.Outcome != dialogue.Interim {
		t.Errorf("interim Outcome = %s", res.Outcome)
	}
	res, _ = f.s.Handle(ctx, types.Utterance{Text: "   ", IsFinal: true})
	if res.Outcome != dialogue.Empty {
		t.Errorf("blank Outcome = %s", res.Outcome)
	}

	f.s.Stop()
	res, _ = f.s.Handle(ctx, types.Utterance{Text: "頭痛", IsFinal: true})
	if res.Outcome != dialogue.Ignored {
		t.Errorf("idle Outcome = %s", res.Outcome)
	}

	if len(f.s.Turns()) != 0 || f.form.Len() != 0 {
		t.Error("ignored events changed state")
	}
	if len(partials) != 1 || partials[0] != "頭" {
		t.Errorf("partials = %v, want [頭]", partials)
	}
}

func TestSession_PendingReplacedBySeed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")
	f.say(t, "有沒有過敏?")
	if p := f.s.Pending(); p == nil || p.Category != types.Allergies || p.Age != 0 {
		t.Fatalf("Pending = %+v, want fresh Allergies", p)
	}
	f.say(t, "盤尼西林")
	if got := f.form.Text(types.Allergies); got != "盤尼西林" {
		t.Errorf("allergies = %q, want 盤尼西林", got)
	}
	if f.form.Text(types.Medications) != "" {
		t.Error("replaced question still received the answer")
	}
}

func TestSession_PendingExpiresAfterTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")

	f.say(t, "好的，請問還有嗎?")
	p := f.s.Pending()
	if p == nil || p.Age != 1 {
		t.Fatalf("after one topic-less turn Pending = %+v, want Age 1", p)
	}

	f.say(t, "那請問呢?")
	if f.s.Pending() != nil {
		t.Fatal("pending question survived two topic-less clinician turns")
	}

	res := f.say(t, "阿斯匹靈")
	if *res.Turn.Category != types.ChiefComplaint {
		t.Errorf("Category = %s, want ChiefComplaint (no pending question)", *res.Turn.Category)
	}
}

func TestSession_PendingExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, dialogue.WithPendingTTL(time.Minute))
	f.say(t, "服用什麼藥物?")
	f.at = f.at.Add(2 * time.Minute)

	res := f.say(t, "阿斯匹靈")
	if *res.Turn.Category == types.Medications {
		t.Error("expired question still routed the answer")
	}
}

func TestSession_StopDiscardsPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")
	f.s.Stop()
	if f.s.State() != dialogue.Idle {
		t.Errorf("State = %s, want idle", f.s.State())
	}
	if f.s.Pending() != nil {
		t.Error("Stop kept the pending question")
	}
	if len(f.s.Turns()) != 1 {
		t.Error("Stop dropped the turn log")
	}

	f.s.Start()
	res := f.say(t, "阿斯匹靈")
	if *res.Turn.Category == types.Medications {
		t.Error("answer after restart used a discarded question")
	}
}

func TestSession_Clear(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")
	f.say(t, "頭痛")
	f.s.Clear()

	if f.s.State() != dialogue.Idle || f.s.Pending() != nil || len(f.s.Turns()) != 0 {
		t.Error("Clear left state behind")
	}
	if st := f.s.Stats(); st != (dialogue.Stats{}) {
		t.Errorf("Stats = %+v, want zero", st)
	}
	if f.form.Text(types.Medications) == "" {
		t.Error("Clear touched the sink")
	}

	// The duplicate filter was reset too.
	f.s.Start()
	if res := f.say(t, "頭痛"); res.Outcome != dialogue.Accepted {
		t.Errorf("Outcome after Clear = %s, want accepted", res.Outcome)
	}
}

func TestSession_SpeakerOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.s.SetSpeakerOverride(types.Clinician)
	res := f.say(t, "頭痛")
	if res.Turn.Speaker != types.Clinician || !res.Turn.Manual {
		t.Errorf("turn = %+v, want manual clinician", res.Turn)
	}
	if len(res.Commits) != 0 {
		t.Errorf("clinician turn committed %+v", res.Commits)
	}

	f.s.SetSpeakerOverride(types.Unknown)
	if f.s.SpeakerOverride() != types.Unknown {
		t.Error("override not cleared")
	}
	res = f.say(t, "還好")
	if res.Turn.Manual || res.Turn.Speaker != types.Patient {
		t.Errorf("turn = %+v, want automatic patient", res.Turn)
	}
}

func TestSession_TargetMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.s.SetTarget(types.Plan); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	res := f.say(t, "服用什麼藥物?")
	if len(res.Commits) != 1 || res.Commits[0].Category != types.Plan {
		t.Fatalf("Commits = %+v, want one Plan commit", res.Commits)
	}
	if f.s.Pending() != nil {
		t.Error("targeted turn seeded a pending question")
	}

	if err := f.s.SetTarget(types.Unclassified); err != nil {
		t.Fatalf("SetTarget(Unclassified): %v", err)
	}
	if f.s.Target() != types.Unclassified {
		t.Error("target not cleared")
	}
	if err := f.s.SetTarget(types.Category(99)); err == nil {
		t.Error("SetTarget(99): want error")
	}
}

func TestSession_Transcript(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")
	f.say(t, "阿斯匹靈")

	want := "[09:00:05] 醫生: 服用什麼藥物?\n\n[09:00:10] 病人: 阿斯匹靈"
	if got := f.s.Transcript(); got != want {
		t.Errorf("Transcript =\n%s\nwant\n%s", got, want)
	}
}

func TestSession_TranscriptLabelsAndClock(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 1, 1, 13, 14, 15, 0, time.UTC)
	f := newFixture(t,
		dialogue.WithTranscriptLabels("Doctor", "Patient"),
		dialogue.WithClock(func() time.Time { return clock }),
	)
	if _, err := f.s.Handle(context.Background(), types.Utterance{Text: "還好", IsFinal: true}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got, want := f.s.Transcript(), "[13:14:15] Patient: 還好"; got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestSession_SinkErrorKeepsTurn(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	f := newFixture(t, dialogue.WithSink(sink.Func(func(context.Context, types.Commit) error { return boom })))

	_, err := f.s.Handle(context.Background(), types.Utterance{Text: "還好", Timestamp: t0, IsFinal: true})
	if !errors.Is(err, boom) {
		t.Fatalf("Handle error = %v, want disk full", err)
	}
	st := f.s.Stats()
	if st.Turns != 1 || st.Commits != 0 {
		t.Errorf("Stats = %+v, want 1 turn and 0 commits", st)
	}
}

func TestSession_FailedCommitIsRetried(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		down = true
		got  []types.Commit
	)
	flaky := sink.Func(func(_ context.Context, c types.Commit) error {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return errors.New("form unreachable")
		}
		got = append(got, c)
		return nil
	})
	f := newFixture(t, dialogue.WithSink(flaky))
	ctx := context.Background()

	f.say(t, "服用什麼藥物?")
	answer := types.Utterance{Text: "阿斯匹靈", Timestamp: t0.Add(time.Minute), IsFinal: true}
	if _, err := f.s.Handle(ctx, answer); err == nil {
		t.Fatal("Handle with the sink down: want error")
	}
	if p := f.s.Pending(); p == nil || p.Category != types.Medications {
		t.Errorf("Pending after failed answer = %+v, want Medications", p)
	}

	mu.Lock()
	down = false
	mu.Unlock()

	res, err := f.s.Handle(ctx, answer)
	if err != nil {
		t.Fatalf("Handle after recovery: %v", err)
	}
	if res.Outcome != dialogue.Accepted {
		t.Fatalf("re-emitted Outcome = %s, want accepted", res.Outcome)
	}
	if len(got) != 1 || got[0].Category != types.Medications || got[0].Text != "阿斯匹靈" {
		t.Errorf("commits = %+v, want one Medications commit", got)
	}

	// Once committed, the same text is a duplicate again.
	if res, _ := f.s.Handle(ctx, answer); res.Outcome != dialogue.Duplicate {
		t.Errorf("third Outcome = %s, want duplicate", res.Outcome)
	}
}

func TestSession_PunctuationOnlyFinal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, text := range []string{"。", "...", "？！", " ， "} {
		res, err := f.s.Handle(context.Background(), types.Utterance{Text: text, IsFinal: true})
		if err != nil {
			t.Fatalf("Handle(%q): %v", text, err)
		}
		if res.Outcome != dialogue.Empty {
			t.Errorf("Handle(%q) Outcome = %s, want empty", text, res.Outcome)
		}
	}
	if len(f.s.Turns()) != 0 || f.form.Len() != 0 {
		t.Errorf("punctuation committed: %d turns, %d fields", len(f.s.Turns()), f.form.Len())
	}
}

func TestSession_InterimWhileIdle(t *testing.T) {
	t.Parallel()

	var partials []string
	f := newFixture(t, dialogue.WithPartials(func(u types.Utterance) {
		partials = append(partials, u.Text)
	}))
	f.s.Stop()

	res, _ := f.s.Handle(context.Background(), types.Utterance{Text: "頭", IsFinal: false})
	if res.Outcome != dialogue.Ignored {
		t.Errorf("idle interim Outcome = %s, want ignored", res.Outcome)
	}
	if len(partials) != 0 {
		t.Errorf("partials = %v, want none while idle", partials)
	}

	f.s.Start()
	if res, _ := f.s.Handle(context.Background(), types.Utterance{Text: "頭", IsFinal: false}); res.Outcome != dialogue.Interim {
		t.Errorf("listening interim Outcome = %s, want interim", res.Outcome)
	}
	if len(partials) != 1 {
		t.Errorf("partials = %v, want one after Start", partials)
	}
}

func TestSession_TurnIDsSurviveClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.say(t, "頭痛")
	f.s.Clear()
	f.s.Start()
	second := f.say(t, "還好")

	if first.Turn.Index != 0 || second.Turn.Index != 0 {
		t.Errorf("indexes = %d, %d, want both 0 after Clear", first.Turn.Index, second.Turn.Index)
	}
	if first.Turn.ID == "" || first.Turn.ID == second.Turn.ID {
		t.Errorf("turn ids = %q, %q, want distinct", first.Turn.ID, second.Turn.ID)
	}
}

type recorder struct {
	mu    sync.Mutex
	turns []dialogue.Turn
}

func (r *recorder) RecordTurn(_ context.Context, _ string, t dialogue.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return nil
}

func TestSession_Run(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	f := newFixture(t, dialogue.WithRecorder(rec))

	ch := make(chan types.Utterance, 4)
	ch <- types.Utterance{Text: "服用什麼藥物?", Timestamp: t0, IsFinal: true}
	ch <- types.Utterance{Text: "阿斯", Timestamp: t0.Add(time.Second)}
	ch <- types.Utterance{Text: "阿斯匹靈", Timestamp: t0.Add(2 * time.Second), IsFinal: true}
	close(ch)

	if err := f.s.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.turns) != 2 {
		t.Fatalf("recorded %d turns, want 2", len(rec.turns))
	}
	if rec.turns[1].Index != 1 {
		t.Errorf("second turn Index = %d, want 1", rec.turns[1].Index)
	}
	if got := f.form.Text(types.Medications); got != "阿斯匹靈" {
		t.Errorf("medications = %q", got)
	}
}

func TestSession_RunCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.s.Run(ctx, make(chan types.Utterance))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestSession_DefaultID(t *testing.T) {
	t.Parallel()

	lex, _ := lexicon.Load(lexicon.LangZhTW)
	a := dialogue.New(speaker.New(nil), classify.New(lex))
	b := dialogue.New(speaker.New(nil), classify.New(lex))
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q, want distinct non-empty", a.ID(), b.ID())
	}
	if a.State() != dialogue.Idle {
		t.Errorf("new session State = %s, want idle", a.State())
	}
}

func TestSession_Snapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.say(t, "服用什麼藥物?")
	f.s.SetSpeakerOverride(types.Patient)
	if err := f.s.SetTarget(types.Plan); err != nil {
		t.Fatal(err)
	}

	snap := f.s.Snapshot()
	if snap.ID != "test" || snap.State != dialogue.Listening {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Pending == nil || snap.Pending.Category != types.Medications {
		t.Errorf("Pending = %+v, want Medications", snap.Pending)
	}
	if snap.Target != types.Plan || snap.Override != types.Patient {
		t.Errorf("mode = %s/%s", snap.Target, snap.Override)
	}
	if snap.Stats.Turns != 1 {
		t.Errorf("Stats = %+v", snap.Stats)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"state":"listening"`, `"target":"plan"`, `"speaker_override":"patient"`, `"category":"medications"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("json %s lacks %s", data, want)
		}
	}
}
