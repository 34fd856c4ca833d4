package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/workflow/node"
	apperrors "z-novel-studio/pkg/errors"
)

type memSessionRepo struct {
	mu   sync.Mutex
	data map[string]*entity.Session
	seq  int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{data: map[string]*entity.Session{}}
}

func (m *memSessionRepo) Create(_ context.Context, s *entity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.ID = fmt.Sprintf("session-%d", m.seq)
	m.data[s.ID] = s.Clone()
	return nil
}

// GetByID 与 Update 像 gorm 一样拒绝已结束的 ctx
func (m *memSessionRepo) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memSessionRepo) Update(ctx context.Context, s *entity.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ID] = s.Clone()
	return nil
}

func (m *memSessionRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *memSessionRepo) List(_ context.Context, p repository.Pagination) (*repository.PagedResult[*entity.Session], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*entity.Session
	for _, s := range m.data {
		items = append(items, s.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (m *memSessionRepo) ListByStates(_ context.Context, states ...entity.GameState) ([]*entity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Session
	for _, s := range m.data {
		for _, st := range states {
			if s.State == st {
				out = append(out, s.Clone())
			}
		}
	}
	return out, nil
}

func (m *memSessionRepo) get(id string) *entity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[id].Clone()
}

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
	return out, nil
}

func (m *memVersionRepo) LatestVersion(ctx context.Context, sessionID, title string) (int, error) {
	rows, _ := m.ListByTitle(ctx, sessionID, title)
	return len(rows), nil
}

func (m *memVersionRepo) DeleteBySession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*entity.OutlineVersion
	for _, r := range m.rows {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

type directTx struct{}

func (directTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeBridge struct {
	mu        sync.Mutex
	brief     string
	searchErr error
	titles    []string
	titlesErr error
	chunks    []string
	hold      bool
	started   chan struct{}
	edited    string
	character string
	cores     []string
}

func (f *fakeBridge) Search(_ context.Context, _ entity.StoryOptions, core string) (string, error) {
	f.mu.Lock()
	f.cores = append(f.cores, core)
	f.mu.Unlock()
	return f.brief, f.searchErr
}

func (f *fakeBridge) ChapterTitles(context.Context, entity.StoryOptions, *entity.StoryOutline, []entity.GeneratedChapter) ([]string, error) {
	return f.titles, f.titlesErr
}

func (f *fakeBridge) EditChapterText(_ context.Context, _ entity.StoryOptions, _, _ string) (string, error) {
	return f.edited, nil
}

func (f *fakeBridge) NewCharacterProfile(context.Context, entity.StoryOptions, *entity.StoryOutline, string) (string, error) {
	return f.character, nil
}

func (f *fakeBridge) WorldbookSuggestions(context.Context, entity.StoryOptions, *entity.StoryOutline) (string, error) {
	return "世界书建议", nil
}

func (f *fakeBridge) CharacterArcSuggestions(_ context.Context, _ entity.StoryOptions, c entity.CharacterProfile, _ *entity.StoryOutline) (string, error) {
	return c.Name + "的弧光", nil
}

func (f *fakeBridge) NarrativeToolbox(_ context.Context, _ entity.StoryOptions, d entity.DetailedOutlineAnalysis, _ *entity.StoryOutline) (string, error) {
	return "技巧:" + d.PlotPoints[0].Summary, nil
}

func (f *fakeBridge) stream(ctx context.Context) *schema.StreamReader[*schema.Message] {
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(schema.AssistantMessage(c, nil), nil)
		}
		if f.hold {
			close(f.started)
			<-ctx.Done()
			sw.Send(nil, ctx.Err())
		}
	}()
	return sr
}

func (f *fakeBridge) StreamChapter(ctx context.Context, _ entity.StoryOptions, _ *entity.StoryOutline,
	_ []entity.GeneratedChapter, _ entity.DetailedOutlineAnalysis) (*schema.StreamReader[*schema.Message], error) {
	return f.stream(ctx), nil
}

func (f *fakeBridge) StreamCharacterInteraction(ctx context.Context, _ entity.StoryOptions, _, _ entity.CharacterProfile,
	_ *entity.StoryOutline) (*schema.StreamReader[*schema.Message], error) {
	return f.stream(ctx), nil
}

func (f *fakeBridge) DetailedOutline(_ context.Context, _ entity.StoryOptions, _ *entity.StoryOutline, _ []entity.GeneratedChapter,
	title string, _ *entity.OptimizationEntry, _ string) (*entity.DetailedOutlineAnalysis, error) {
	return &entity.DetailedOutlineAnalysis{PlotPoints: []entity.PlotPoint{{Summary: title + "的剧情"}}}, nil
}

func (f *fakeBridge) CritiqueOutline(context.Context, entity.StoryOptions, entity.DetailedOutlineAnalysis,
	*entity.StoryOutline, string) (*entity.OutlineCritique, error) {
	return &entity.OutlineCritique{OverallScore: 8}, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*messaging.ChapterCompleteMessage
}

func (r *recordingEvents) PublishChapterComplete(_ context.Context, evt *messaging.ChapterCompleteMessage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return "1-0", nil
}

type harness struct {
	svc      *Service
	sessions *memSessionRepo
	versions *memVersionRepo
	bridge   *fakeBridge
	events   *recordingEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{Studio: config.StudioConfig{
		SearchModel:   "search-m",
		PlanningModel: "plan-m",
		WritingModel:  "write-m",
		Length:        "超短篇(5-10章)",
		OpTimeout:     5 * time.Second,
	}}
	h := &harness{
		sessions: newMemSessionRepo(),
		versions: &memVersionRepo{},
		bridge:   &fakeBridge{},
		events:   &recordingEvents{},
	}
	orch := outline.NewOrchestrator(h.bridge, outline.NewRepositoryStore(h.versions), nil)
	h.svc = NewService(h.sessions, h.versions, directTx{}, h.bridge, orch, h.events, cfg)
	return h
}

const validBrief = `这是创作简报：
{"title":"","plotSynopsis":"少年寻姐","characters":[{"role":"主角","name":"阿澈"},{"role":"配角","name":"青禾"}],
"worldCategories":[{"name":"地理","entries":[{"key":"雨城","value":"常年下雨"}]}]}
以上。`

func (h *harness) planned(t *testing.T) *entity.Session {
	t.Helper()
	sess, err := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "雨城寻亲")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.bridge.brief = validBrief
	h.bridge.titles = []string{"雨夜", "重逢"}
	if _, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{}); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return h.sessions.get(sess.ID)
}

func (h *harness) withOutline(t *testing.T, sessionID, title string) {
	t.Helper()
	if _, err := h.svc.IterateOutline(context.Background(), sessionID, title, ""); err != nil {
		t.Fatalf("IterateOutline: %v", err)
	}
}

func TestCreateSession_AppliesConfiguredDefaults(t *testing.T) {
	h := newHarness(t)
	sess, err := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{Style: ptr("悬疑")}, "  核心  ")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.State != entity.GameStateInitial || sess.StoryCore != "核心" {
		t.Errorf("session = %+v", sess)
	}
	o := sess.Options
	if o.PlanningModel != "plan-m" || o.Style != "悬疑" || o.TopK != entity.DefaultTopK || o.Temperature != entity.DefaultTemperature {
		t.Errorf("options = %+v", o)
	}
}

func TestPlan_Success(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)

	if sess.State != entity.GameStatePlanningComplete {
		t.Errorf("state = %s", sess.State)
	}
	if sess.Outline == nil || sess.Outline.Title != "无标题" || len(sess.Outline.Characters) != 2 {
		t.Fatalf("outline = %+v", sess.Outline)
	}
	if len(sess.GeneratedTitles) != 2 || sess.GeneratedTitles[0] != "雨夜" {
		t.Errorf("titles = %v", sess.GeneratedTitles)
	}
}

func TestPlan_RefinementAppendsInstruction(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	if _, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{Refinement: "多一点悬疑"}); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	last := h.bridge.cores[len(h.bridge.cores)-1]
	if last != "雨城寻亲\n\n---\n**优化指令:**\n多一点悬疑" {
		t.Errorf("refined core = %q", last)
	}
}

func TestPlan_TitleFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "雨城寻亲")
	h.bridge.brief = validBrief
	h.bridge.titlesErr = apperrors.New(apperrors.CodeUpstreamError, "上游API服务器错误 (状态码: 503)。请稍后重试。")

	res, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !strings.HasPrefix(res.Warning, "自动生成初始章节标题失败: ") {
		t.Errorf("warning = %q", res.Warning)
	}
	if got := h.sessions.get(sess.ID); got.State != entity.GameStatePlanningComplete || got.Outline == nil {
		t.Errorf("plan should stay committed, state = %s", got.State)
	}
}

func TestPlan_TruncatesInitialTitles(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "雨城寻亲")
	h.bridge.brief = validBrief
	for i := 0; i < 15; i++ {
		h.bridge.titles = append(h.bridge.titles, "章")
	}
	if _, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{}); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if n := len(h.sessions.get(sess.ID).GeneratedTitles); n != 10 {
		t.Errorf("titles = %d, want 10", n)
	}
}

func TestPlan_FailureRevertsState(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "雨城寻亲")
	h.bridge.brief = `{"title":"缺结构","plotSynopsis":"有","characters":[]}`

	_, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{})
	if !errors.Is(err, errOutlineStructure) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got := h.sessions.get(sess.ID)
	if got.State != entity.GameStateInitial || got.Outline != nil {
		t.Errorf("state = %s outline = %+v", got.State, got.Outline)
	}
	if got.LastError != errOutlineStructure.Message {
		t.Errorf("last error = %q", got.LastError)
	}
}

func TestPlan_EmptyCore(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "")
	if _, err := h.svc.Plan(context.Background(), sess.ID, PlanInput{StoryCore: "   "}); !errors.Is(err, errEmptyStoryCore) {
		t.Fatalf("expected empty core error, got %v", err)
	}
}

func TestParseStoryOutline(t *testing.T) {
	cases := []struct {
		name string
		in   string
		msg  string
	}{
		{"no brace", "纯文本", "JSON解析失败：在AI的输出中未能找到JSON对象的起始符号 '{'。"},
		{"no closing", "{ 未闭合", "JSON解析失败：在AI的输出中未能找到一个有效的JSON对象结构。"},
		{"bad json", "{title: x}", "JSON解析失败：AI返回的文本不是一个有效的JSON格式。错误: "},
		{"missing world", `{"plotSynopsis":"p","characters":[{"name":"a"}]}`, errOutlineStructure.Message},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStoryOutline(tc.in)
			if err == nil || !strings.HasPrefix(apperrors.AsAppError(err).Message, tc.msg) {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestGenerateTitles_LimitReached(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.bridge.titles = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	updated, err := h.svc.GenerateTitles(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GenerateTitles: %v", err)
	}
	if len(updated.GeneratedTitles) != 10 {
		t.Errorf("titles should be truncated to the limit, got %d", len(updated.GeneratedTitles))
	}
	if _, err := h.svc.GenerateTitles(context.Background(), sess.ID); !errors.Is(err, errChapterLimit) {
		t.Errorf("expected limit error, got %v", err)
	}
}

func TestIterateOutline_StoresWrappedResult(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)

	final, err := h.svc.IterateOutline(context.Background(), sess.ID, "雨夜", "")
	if err != nil {
		t.Fatalf("IterateOutline: %v", err)
	}
	if final.FinalVersion != 1 {
		t.Errorf("version = %d", final.FinalVersion)
	}
	h.withOutline(t, sess.ID, "雨夜")

	got := h.sessions.get(sess.ID)
	var parsed entity.FinalDetailedOutline
	if err := node.ParseMarkedJSON(got.DetailedOutlines["雨夜"], entity.MarkerOutlineStart, entity.MarkerOutlineEnd, "test", &parsed); err != nil {
		t.Fatalf("stored outline should parse: %v", err)
	}
	if parsed.FinalVersion != 2 || got.ActiveTitle != "雨夜" {
		t.Errorf("parsed version = %d active = %q", parsed.FinalVersion, got.ActiveTitle)
	}

	history, err := h.svc.OutlineHistory(context.Background(), sess.ID, "雨夜")
	if err != nil || len(history) != 2 {
		t.Errorf("history = %v, %v", history, err)
	}
}

func TestWriteChapter_Success(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerThought + "构思", entity.MarkerContent + "章节标题：雨夜来客\n", "夜雨敲窗。"}

	var snaps []ChapterSnapshot
	ch, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", func(s ChapterSnapshot) { snaps = append(snaps, s) })
	if err != nil {
		t.Fatalf("WriteChapter: %v", err)
	}
	if ch.ID != 1 || ch.Title != "雨夜来客" || ch.Content != "夜雨敲窗。" || ch.Thought != "构思" {
		t.Errorf("chapter = %+v", ch)
	}
	if len(snaps) != 3 || snaps[2].Status != entity.ChapterStatusStreaming {
		t.Errorf("snapshots = %+v", snaps)
	}

	got := h.sessions.get(sess.ID)
	if got.State != entity.GameStateChapterComplete || len(got.Chapters) != 1 || !got.Chapters[0].IsComplete() {
		t.Errorf("session after write: state=%s chapters=%+v", got.State, got.Chapters)
	}
	if len(h.events.events) != 1 || h.events.events[0].WordCount != 5 {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestWriteChapter_StoppedAfterThinkingCommitsEmptyChapter(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerThought + "只想不写"}

	ch, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", nil)
	if !errors.Is(err, apperrors.ErrStoppedAfterThinking) {
		t.Fatalf("expected stopped-after-thinking, got %v", err)
	}
	if ch == nil || ch.Content != "" || ch.Thought != "只想不写" {
		t.Errorf("chapter = %+v", ch)
	}
	got := h.sessions.get(sess.ID)
	if got.State != entity.GameStateChapterComplete || len(got.Chapters) != 1 {
		t.Errorf("state=%s chapters=%d", got.State, len(got.Chapters))
	}
}

func TestWriteChapter_InvalidOutline(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)

	_, err := h.svc.WriteChapter(context.Background(), sess.ID, "没有细纲", nil)
	if !errors.Is(err, errInvalidDetailedOutline) {
		t.Fatalf("expected invalid outline error, got %v", err)
	}
	if got := h.sessions.get(sess.ID); got.State != entity.GameStatePlanningComplete {
		t.Errorf("state should revert, got %s", got.State)
	}
}

func TestBusyGuardAndAbort(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerContent + "半句"}
	h.bridge.hold = true
	h.bridge.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", nil)
		done <- err
	}()
	<-h.bridge.started

	if got := h.sessions.get(sess.ID); got.State != entity.GameStateWriting {
		t.Errorf("state during generation = %s", got.State)
	}
	if _, err := h.svc.GenerateTitles(context.Background(), sess.ID); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Errorf("expected busy error, got %v", err)
	}
	if _, err := h.svc.UpdateChapter(context.Background(), sess.ID, 1, "", "x"); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Errorf("manual edits should be rejected while busy, got %v", err)
	}

	if !h.svc.Abort(context.Background(), sess.ID) {
		t.Fatalf("Abort should report an in-flight operation")
	}
	select {
	case err := <-done:
		if !errors.Is(err, apperrors.ErrGenerationAborted) {
			t.Errorf("expected aborted, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("generation did not stop after abort")
	}

	got := h.sessions.get(sess.ID)
	if got.State != entity.GameStatePlanningComplete || len(got.Chapters) != 0 {
		t.Errorf("abort should revert: state=%s chapters=%d", got.State, len(got.Chapters))
	}
	if got.LastError != "" {
		t.Errorf("abort must not be recorded as a failure, got %q", got.LastError)
	}
	if h.svc.Abort(context.Background(), sess.ID) {
		t.Errorf("nothing should be in flight any more")
	}
}

func TestWriteChapter_OperationTimeoutIsNotUpstreamTimeout(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerContent + "半句"}
	h.bridge.hold = true
	h.bridge.started = make(chan struct{})
	h.svc.timeout = 30 * time.Millisecond

	_, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", nil)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeOperationTimeout {
		t.Fatalf("expected operation timeout, got %v", err)
	}
	if strings.Contains(appErr.Message, "Gateway Timeout") {
		t.Errorf("local deadline reported as upstream timeout: %q", appErr.Message)
	}

	got := h.sessions.get(sess.ID)
	if got.State != entity.GameStatePlanningComplete || len(got.Chapters) != 0 {
		t.Errorf("timeout should revert: state=%s chapters=%d", got.State, len(got.Chapters))
	}
	if got.LastError != appErr.Message {
		t.Errorf("last error = %q", got.LastError)
	}
}

func TestRegenerateLastChapter(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerContent + "初稿"}
	if _, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", nil); err != nil {
		t.Fatalf("WriteChapter: %v", err)
	}

	h.bridge.chunks = []string{entity.MarkerContent + "重写"}
	ch, err := h.svc.RegenerateLastChapter(context.Background(), sess.ID, nil)
	if err != nil {
		t.Fatalf("RegenerateLastChapter: %v", err)
	}
	got := h.sessions.get(sess.ID)
	if ch.ID != 1 || len(got.Chapters) != 1 || got.Chapters[0].Content != "重写" {
		t.Errorf("chapters = %+v", got.Chapters)
	}
	if !h.events.events[len(h.events.events)-1].Regenerated {
		t.Errorf("event should be flagged as regenerated")
	}
}

func TestRegenerateLastChapter_MissingOutline(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "重逢")
	h.bridge.chunks = []string{entity.MarkerContent + "正文"}
	if _, err := h.svc.WriteChapter(context.Background(), sess.ID, "重逢", nil); err != nil {
		t.Fatalf("WriteChapter: %v", err)
	}

	_, err := h.svc.RegenerateLastChapter(context.Background(), sess.ID, nil)
	want := "无法重新生成第 1 章，缺少对应的细纲。请先在“细纲”模块中生成。"
	if apperrors.AsAppError(err).Message != want {
		t.Fatalf("error = %v", err)
	}
	if got := h.sessions.get(sess.ID); got.State != entity.GameStateChapterComplete || got.Chapters[0].Content != "正文" {
		t.Errorf("failed regenerate must keep the chapter")
	}
}

func TestEditLastChapter(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")
	h.bridge.chunks = []string{entity.MarkerContent + "雨下了一夜，她没有回来。"}
	if _, err := h.svc.WriteChapter(context.Background(), sess.ID, "雨夜", nil); err != nil {
		t.Fatalf("WriteChapter: %v", err)
	}

	h.bridge.edited = "雨下了一夜，她终于回来了。"
	res, err := h.svc.EditLastChapter(context.Background(), sess.ID, "让她回来")
	if err != nil {
		t.Fatalf("EditLastChapter: %v", err)
	}
	if res.Chapter.Content != h.bridge.edited {
		t.Errorf("content = %q", res.Chapter.Content)
	}
	if res.Diff.Inserted == 0 || res.Diff.Deleted == 0 {
		t.Errorf("diff = %+v", res.Diff)
	}
	if h.sessions.get(sess.ID).Chapters[0].Content != h.bridge.edited {
		t.Errorf("edit not persisted")
	}
}

func TestTools(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	ctx := context.Background()

	if text, err := h.svc.WorldbookSuggestions(ctx, sess.ID); err != nil || text != "世界书建议" {
		t.Errorf("worldbook = %q, %v", text, err)
	}
	if text, err := h.svc.CharacterArcSuggestions(ctx, sess.ID, "青禾"); err != nil || text != "青禾的弧光" {
		t.Errorf("arc = %q, %v", text, err)
	}
	if _, err := h.svc.CharacterArcSuggestions(ctx, sess.ID, "路人"); apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Errorf("unknown character should be not found, got %v", err)
	}
	if _, err := h.svc.NarrativeToolbox(ctx, sess.ID, "雨夜"); !errors.Is(err, errToolNeedsOutline) {
		t.Errorf("toolbox without outline: %v", err)
	}
	h.withOutline(t, sess.ID, "雨夜")
	if text, err := h.svc.NarrativeToolbox(ctx, sess.ID, "雨夜"); err != nil || text != "技巧:雨夜的剧情" {
		t.Errorf("toolbox = %q, %v", text, err)
	}

	profile, _ := json.Marshal(entity.CharacterProfile{Role: "反派", Name: "白鸦"})
	h.bridge.character = string(profile)
	created, err := h.svc.NewCharacter(ctx, sess.ID, "记忆商人")
	if err != nil || created.Name != "白鸦" {
		t.Fatalf("NewCharacter = %+v, %v", created, err)
	}
	if _, ok := h.sessions.get(sess.ID).Outline.FindCharacter("白鸦"); !ok {
		t.Errorf("new character should be appended to the outline")
	}

	h.bridge.chunks = []string{"阿澈：", "你来了。"}
	var partial []string
	scene, err := h.svc.CharacterInteraction(ctx, sess.ID, "阿澈", "青禾", func(s string) { partial = append(partial, s) })
	if err != nil || scene != "阿澈：你来了。" || len(partial) != 2 {
		t.Errorf("scene = %q partial = %v err = %v", scene, partial, err)
	}
}

func TestUpdateOptionsAndOutline(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{}, "")

	updated, err := h.svc.UpdateOptions(context.Background(), sess.ID, entity.StoryOptionsPatch{WritingModel: ptr("w2"), TopK: ptr(64)})
	if err != nil || updated.Options.WritingModel != "w2" || updated.Options.TopK != 64 || updated.Options.PlanningModel != "plan-m" {
		t.Fatalf("options = %+v, %v", updated.Options, err)
	}

	manual := &entity.StoryOutline{Title: "手写"}
	updated, err = h.svc.UpdateOutline(context.Background(), sess.ID, manual)
	if err != nil || updated.Outline.Title != "手写" || updated.State != entity.GameStatePlanningComplete {
		t.Fatalf("outline update = %+v, %v", updated, err)
	}
}

func TestUpdateOptions_ExplicitZeroOverridesDefaults(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.CreateSession(context.Background(), entity.StoryOptionsPatch{Temperature: ptr(0.0)}, "")
	if sess.Options.Temperature != 0 || sess.Options.TopK != entity.DefaultTopK {
		t.Fatalf("created options = %+v", sess.Options)
	}

	updated, err := h.svc.UpdateOptions(context.Background(), sess.ID, entity.StoryOptionsPatch{TopK: ptr(0)})
	if err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}
	if updated.Options.TopK != 0 || updated.Options.Temperature != 0 {
		t.Errorf("options = %+v", updated.Options)
	}
	if updated.Options.Style != entity.DefaultStyle {
		t.Errorf("absent fields must keep their value, style = %q", updated.Options.Style)
	}
}

func ptr[T any](v T) *T { return &v }

func TestRecover(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	stuck := h.sessions.get(sess.ID)
	stuck.State = entity.GameStateWriting
	_ = h.sessions.Update(context.Background(), stuck)

	n, err := h.svc.Recover(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if got := h.sessions.get(sess.ID); got.State != entity.GameStatePlanningComplete {
		t.Errorf("state = %s", got.State)
	}
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t)
	sess := h.planned(t)
	h.withOutline(t, sess.ID, "雨夜")

	if err := h.svc.DeleteSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := h.svc.GetSession(context.Background(), sess.ID); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if len(h.versions.rows) != 0 {
		t.Errorf("outline history should be deleted with the session")
	}
}

func TestDiffWords(t *testing.T) {
	d := DiffWords("雨停了，她走了。", "雨停了，他来了。")
	if d.Deleted != 3 || d.Inserted != 3 {
		t.Errorf("diff = %+v", d)
	}
	if d.Deltas[0].Op != DiffEqual || d.Deltas[0].Text != "雨停了，" {
		t.Errorf("first delta = %+v", d.Deltas[0])
	}
}
