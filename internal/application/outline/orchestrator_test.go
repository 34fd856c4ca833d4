package outline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/workflow/node"
	apperrors "z-novel-studio/pkg/errors"
)

type memVersionRepo struct {
	mu   sync.Mutex
	rows []*entity.OutlineVersion
}

func (m *memVersionRepo) Append(_ context.Context, v *entity.OutlineVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
	return nil
}

func (m *memVersionRepo) ListByTitle(_ context.Context, sessionID, title string) ([]*entity.OutlineVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.OutlineVersion
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.ChapterTitle == title {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *memVersionRepo) LatestVersion(ctx context.Context, sessionID, title string) (int, error) {
	rows, _ := m.ListByTitle(ctx, sessionID, title)
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[len(rows)-1].Version, nil
}

func (m *memVersionRepo) DeleteBySession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

type fakePlanner struct {
	calls       int
	previous    []*entity.OptimizationEntry
	critiqueErr error
	beforeCrit  func()
}

func (f *fakePlanner) DetailedOutline(_ context.Context, _ entity.StoryOptions, _ *entity.StoryOutline, _ []entity.GeneratedChapter,
	title string, previous *entity.OptimizationEntry, userInput string) (*entity.DetailedOutlineAnalysis, error) {
	f.calls++
	f.previous = append(f.previous, previous)
	return &entity.DetailedOutlineAnalysis{PlotPoints: []entity.PlotPoint{{Summary: title + userInput}}}, nil
}

func (f *fakePlanner) CritiqueOutline(context.Context, entity.StoryOptions, entity.DetailedOutlineAnalysis,
	*entity.StoryOutline, string) (*entity.OutlineCritique, error) {
	if f.beforeCrit != nil {
		f.beforeCrit()
	}
	if f.critiqueErr != nil {
		return nil, f.critiqueErr
	}
	return &entity.OutlineCritique{OverallScore: 7.5 + float64(f.calls)}, nil
}

type recordingPublisher struct {
	events []*messaging.OutlineVersionMessage
}

func (p *recordingPublisher) PublishOutlineVersion(_ context.Context, evt *messaging.OutlineVersionMessage) (string, error) {
	p.events = append(p.events, evt)
	return "1-0", nil
}

func planningRequest(input string) Request {
	opts := entity.DefaultStoryOptions()
	opts.PlanningModel = "plan-m"
	return Request{SessionID: "s1", Options: opts, ChapterTitle: "雨夜", UserInput: input}
}

func TestIterate_VersionsIncrease(t *testing.T) {
	repo := &memVersionRepo{}
	planner := &fakePlanner{}
	pub := &recordingPublisher{}
	o := NewOrchestrator(planner, NewRepositoryStore(repo), pub)
	ctx := context.Background()

	first, err := o.Iterate(ctx, planningRequest(""))
	if err != nil {
		t.Fatalf("first Iterate: %v", err)
	}
	if first.Final.FinalVersion != 1 || len(first.Final.OptimizationHistory) != 1 {
		t.Fatalf("first result = %+v", first.Final)
	}
	if planner.previous[0] != nil {
		t.Errorf("first call must not carry a previous attempt")
	}

	second, err := o.Iterate(ctx, planningRequest("加快节奏"))
	if err != nil {
		t.Fatalf("second Iterate: %v", err)
	}
	if second.Final.FinalVersion != 2 {
		t.Errorf("version = %d, want 2", second.Final.FinalVersion)
	}
	if prev := planner.previous[1]; prev == nil || prev.Version != 1 {
		t.Errorf("second call should receive v1 as previous attempt, got %+v", prev)
	}

	var parsed entity.FinalDetailedOutline
	if err := node.ParseMarkedJSON(second.Wrapped, entity.MarkerOutlineStart, entity.MarkerOutlineEnd, "test", &parsed); err != nil {
		t.Fatalf("wrapped result should parse: %v", err)
	}
	if parsed.FinalVersion != 2 || len(parsed.OptimizationHistory) != 2 {
		t.Errorf("parsed = %+v", parsed)
	}
	if parsed.OptimizationHistory[0].Version != 1 || parsed.OptimizationHistory[1].Version != 2 {
		t.Errorf("history versions out of order")
	}
	if parsed.PlotPoints[0].Summary != "雨夜加快节奏" {
		t.Errorf("final outline should be the latest draft, got %q", parsed.PlotPoints[0].Summary)
	}

	if len(repo.rows) != 2 || repo.rows[1].UserInput != "加快节奏" {
		t.Errorf("repository rows = %+v", repo.rows)
	}
	if len(pub.events) != 2 || pub.events[1].Version != 2 {
		t.Errorf("published events = %+v", pub.events)
	}

	history, err := o.History(ctx, "s1", " 雨夜 ")
	if err != nil || len(history) != 2 {
		t.Fatalf("History = %v, %v", history, err)
	}
}

func TestIterate_FailureAppendsNothing(t *testing.T) {
	repo := &memVersionRepo{}
	upstream := apperrors.New(apperrors.CodeUpstreamError, "上游API服务器错误 (状态码: 503)。请稍后重试。")
	o := NewOrchestrator(&fakePlanner{critiqueErr: upstream}, NewRepositoryStore(repo), nil)

	_, err := o.Iterate(context.Background(), planningRequest(""))
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(repo.rows) != 0 {
		t.Errorf("failed cycle must not append history")
	}
}

func TestIterate_CancelledAppendsNothing(t *testing.T) {
	repo := &memVersionRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(&fakePlanner{beforeCrit: cancel}, NewRepositoryStore(repo), nil)

	_, err := o.Iterate(ctx, planningRequest(""))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(repo.rows) != 0 {
		t.Errorf("cancelled cycle must not append history")
	}
}

func TestIterate_Validation(t *testing.T) {
	o := NewOrchestrator(&fakePlanner{}, NewRepositoryStore(&memVersionRepo{}), nil)

	req := planningRequest("")
	req.Options.PlanningModel = ""
	if _, err := o.Iterate(context.Background(), req); !errors.Is(err, ErrPlanningModelMissing) {
		t.Errorf("expected planning model error, got %v", err)
	}

	req = planningRequest("")
	req.ChapterTitle = "  "
	if _, err := o.Iterate(context.Background(), req); apperrors.AsAppError(err).Code != apperrors.CodeInvalidParam {
		t.Errorf("expected invalid param, got %v", err)
	}
}

func TestRepositoryStore_RejectsVersionGap(t *testing.T) {
	store := NewRepositoryStore(&memVersionRepo{})
	err := store.Append(context.Background(), "s1", "雨夜", entity.OptimizationEntry{Version: 2}, "")
	if apperrors.AsAppError(err).Code != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMaxChapters(t *testing.T) {
	cases := map[string]int{
		"短篇(15-30章)":   30,
		"超短篇(5-10章)":   10,
		"中篇(30-100章)":  100,
		"长篇(100章以上)":   2000,
		"随便写写":         30,
		"":             30,
	}
	for in, want := range cases {
		if got := MaxChapters(in); got != want {
			t.Errorf("MaxChapters(%q) = %d, want %d", in, got, want)
		}
	}
	if RemainingSlots("超短篇(5-10章)", 12) != 0 || RemainingSlots("超短篇(5-10章)", 4) != 6 {
		t.Errorf("RemainingSlots wrong")
	}
}
