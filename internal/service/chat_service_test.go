package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
)

// --- 测试替身 ---

type fakeProfiles struct {
	profile *model.BotProfile
	err     error
}

func (f *fakeProfiles) GetBotProfile(_ context.Context, botID string) (*model.BotProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile != nil && f.profile.BotID == botID {
		return f.profile, nil
	}
	return nil, nil
}

type fakeKeys struct {
	bound map[string]string // token -> botID
	err   error
}

func (f *fakeKeys) LookupAPIKey(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.bound[token], nil
}

type fakeLimiter struct {
	decision model.RateLimitDecision
	err      error
	calls    int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string) (model.RateLimitDecision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeRetriever struct {
	snippets []string
	panics   bool
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string) []string {
	if f.panics {
		panic("retriever backend exploded")
	}
	return f.snippets
}

type fakeInvoker struct {
	raw       string
	err       error
	calls     int
	gotSystem string
	gotModel  string
	gotHist   []model.HistoryEntry
}

func (f *fakeInvoker) Invoke(_ context.Context, systemPrompt string, history []model.HistoryEntry, _, modelName string) (string, model.ModelUsage, error) {
	f.calls++
	f.gotSystem = systemPrompt
	f.gotModel = modelName
	f.gotHist = history
	if f.err != nil {
		return "", model.ModelUsage{}, f.err
	}
	return f.raw, model.ModelUsage{PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *fakeInvoker) DefaultModel() string { return "qwen-plus" }

type fakeLogStore struct {
	mu      sync.Mutex
	entries []model.ChatLogEntry
	err     error
}

func (f *fakeLogStore) InsertChatLog(_ context.Context, entry model.ChatLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

func (f *fakeLogStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeLogStore) waitFor(t *testing.T, n int) []model.ChatLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count() >= n {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]model.ChatLogEntry(nil), f.entries...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d log entries, have %d", n, f.count())
	return nil
}

// --- 组装 ---

type pipelineFixture struct {
	svc       *ChatService
	profiles  *fakeProfiles
	keys      *fakeKeys
	limiter   *fakeLimiter
	retriever *fakeRetriever
	invoker   *fakeInvoker
	logStore  *fakeLogStore
}

func newFixture() *pipelineFixture {
	f := &pipelineFixture{
		profiles: &fakeProfiles{profile: &model.BotProfile{
			BotID:           "bot-1",
			Persona:         "Helpful.",
			Mission:         "Answer Acme questions.",
			FallbackMessage: "Sorry, I can only help with Acme topics.",
			BusinessName:    "Acme",
			AllowedModels:   []string{"qwen-plus", "qwen-max"},
		}},
		keys:      &fakeKeys{bound: map[string]string{"key-for-bot-1": "bot-1", "key-for-bot-2": "bot-2"}},
		limiter:   &fakeLimiter{decision: model.RateLimitDecision{Allowed: true, Remaining: 19}},
		retriever: &fakeRetriever{},
		invoker:   &fakeInvoker{raw: `{"answer":"model answer","suggestedQuestions":["Next?"]}`},
		logStore:  &fakeLogStore{},
	}

	logger := zap.NewNop()
	f.svc = NewChatService(
		f.profiles,
		f.keys,
		f.limiter,
		f.retriever,
		f.invoker,
		NewChatLogService(f.logStore, logger),
		NewPromptBuilder(1000),
		logger,
	)
	return f
}

func validRequest() *model.ChatTurnRequest {
	return &model.ChatTurnRequest{
		BotID:     "bot-1",
		SessionID: "session-abc-123",
		Message:   "what is your refund policy",
	}
}

// --- 用例 ---

func TestHandleTurnSuccess(t *testing.T) {
	f := newFixture()
	result, err := f.svc.HandleTurn(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer != "model answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.SuggestedQuestions) != 1 || result.SuggestedQuestions[0] != "Next?" {
		t.Fatalf("unexpected questions: %v", result.SuggestedQuestions)
	}

	// 每轮两条日志：先用户后助手
	entries := f.logStore.waitFor(t, 2)
	roles := map[string]bool{}
	for _, e := range entries {
		roles[e.Role] = true
	}
	if !roles["user"] || !roles["assistant"] {
		t.Fatalf("expected user and assistant log entries, got %+v", entries)
	}
}

func TestHandleTurnValidation(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name   string
		mutate func(*model.ChatTurnRequest)
	}{
		{"missing bot id", func(r *model.ChatTurnRequest) { r.BotID = "" }},
		{"empty message", func(r *model.ChatTurnRequest) { r.Message = "" }},
		{"short session id", func(r *model.ChatTurnRequest) { r.SessionID = "abc" }},
		{"session id bad chars", func(r *model.ChatTurnRequest) { r.SessionID = "has space in it" }},
		{"session id too long", func(r *model.ChatTurnRequest) {
			r.SessionID = ""
			for i := 0; i < 65; i++ {
				r.SessionID += "a"
			}
		}},
		{"too much history", func(r *model.ChatTurnRequest) {
			for i := 0; i < 21; i++ {
				r.ChatHistory = append(r.ChatHistory, model.HistoryEntry{Role: "user", Content: "x"})
			}
		}},
		{"bad history role", func(r *model.ChatTurnRequest) {
			r.ChatHistory = []model.HistoryEntry{{Role: "system", Content: "x"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			_, err := f.svc.HandleTurn(context.Background(), req)
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if f.invoker.calls != 0 {
		t.Fatalf("validation failures must not invoke the model")
	}
}

// API Key 绑定到别的机器人：在一切处理之前拒绝
func TestHandleTurnAPIKeyMismatch(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.APIKeyToken = "key-for-bot-2"

	_, err := f.svc.HandleTurn(context.Background(), req)
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if f.limiter.calls != 0 || f.invoker.calls != 0 {
		t.Fatalf("auth failure must short-circuit the pipeline")
	}

	// 未知令牌同样拒绝
	req.APIKeyToken = "unknown-token"
	if _, err := f.svc.HandleTurn(context.Background(), req); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown token, got %v", err)
	}

	// 凭据库故障保守拒绝
	f.keys.err = fmt.Errorf("db down")
	req.APIKeyToken = "key-for-bot-1"
	if _, err := f.svc.HandleTurn(context.Background(), req); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on key store failure, got %v", err)
	}
}

func TestHandleTurnBotNotFound(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.BotID = "no-such-bot"

	_, err := f.svc.HandleTurn(context.Background(), req)
	if !errors.Is(err, model.ErrBotNotFound) {
		t.Fatalf("expected ErrBotNotFound, got %v", err)
	}
}

// 垃圾输入：400 拒绝，不调模型，但用户消息仍被记录
func TestHandleTurnGibberish(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Message = "asdkjaskjdhaksjdh"

	_, err := f.svc.HandleTurn(context.Background(), req)
	if !errors.Is(err, model.ErrGibberish) {
		t.Fatalf("expected ErrGibberish, got %v", err)
	}
	if f.invoker.calls != 0 {
		t.Fatalf("gibberish must not invoke the model")
	}

	entries := f.logStore.waitFor(t, 1)
	if entries[0].Role != "user" || entries[0].Message != req.Message {
		t.Fatalf("expected best-effort user log, got %+v", entries[0])
	}
}

// 限流拒绝：429，携带重试元数据，后续阶段不执行，不记日志
func TestHandleTurnRateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.decision = model.RateLimitDecision{Allowed: false, Remaining: 0, ResetAt: 1700000000}

	_, err := f.svc.HandleTurn(context.Background(), validRequest())
	var rle *model.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Decision.Remaining != 0 || rle.Decision.ResetAt != 1700000000 {
		t.Fatalf("unexpected decision: %+v", rle.Decision)
	}
	if f.invoker.calls != 0 {
		t.Fatalf("rate-limited turn must not invoke the model")
	}

	time.Sleep(50 * time.Millisecond)
	if f.logStore.count() != 0 {
		t.Fatalf("rejected attempts must not be logged")
	}
}

// 限流后端故障：保守拒绝而不是放行
func TestHandleTurnRateLimitFailClosed(t *testing.T) {
	f := newFixture()
	f.limiter.decision = model.RateLimitDecision{Allowed: false}
	f.limiter.err = fmt.Errorf("redis unreachable")

	_, err := f.svc.HandleTurn(context.Background(), validRequest())
	var rle *model.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError on backend failure, got %v", err)
	}
	if f.invoker.calls != 0 {
		t.Fatalf("must not invoke the model when the counter backend is down")
	}
}

// 场景 A：寒暄 + 空知识上下文 → 兜底话术原样返回，不调模型
func TestHandleTurnShortCircuit(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Message = "hi"

	result, err := f.svc.HandleTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer != f.profiles.profile.FallbackMessage {
		t.Fatalf("fallback must be verbatim: got %q want %q", result.Answer, f.profiles.profile.FallbackMessage)
	}
	if len(result.SuggestedQuestions) != 0 {
		t.Fatalf("short-circuit must return empty questions, got %v", result.SuggestedQuestions)
	}
	if f.invoker.calls != 0 {
		t.Fatalf("short-circuit must not invoke the model")
	}

	// 短路轮仍然两侧都记日志
	f.logStore.waitFor(t, 2)
}

// 有知识上下文时寒暄不短路，交给模型
func TestHandleTurnNoShortCircuitWithContext(t *testing.T) {
	f := newFixture()
	f.retriever.snippets = []string{"Acme opening hours: 9-17"}
	req := validRequest()
	req.Message = "hi!"

	result, err := f.svc.HandleTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.invoker.calls != 1 {
		t.Fatalf("expected model invocation, got %d", f.invoker.calls)
	}
	if result.Answer != "model answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

// 检索崩溃不得中断聊天
func TestHandleTurnRetrieverFaultIsolation(t *testing.T) {
	f := newFixture()
	f.retriever.panics = true

	result, err := f.svc.HandleTurn(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("retriever fault must not propagate: %v", err)
	}
	if result.Answer == "" {
		t.Fatalf("expected populated result despite retriever fault")
	}
}

// 模型硬失败：500 等效错误
func TestHandleTurnModelFailure(t *testing.T) {
	f := newFixture()
	f.invoker.err = fmt.Errorf("backend timeout")

	_, err := f.svc.HandleTurn(context.Background(), validRequest())
	if !errors.Is(err, model.ErrModelInvocation) {
		t.Fatalf("expected ErrModelInvocation, got %v", err)
	}
}

// 模型产出无法修复的文本：统一替换为兜底话术，而不是报错
func TestHandleTurnMalformedOutputFallsBack(t *testing.T) {
	f := newFixture()
	f.invoker.raw = "complete garbage, no json here"

	result, err := f.svc.HandleTurn(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer != f.profiles.profile.FallbackMessage {
		t.Fatalf("expected verbatim fallback, got %q", result.Answer)
	}
}

// 模型白名单：合法覆盖生效，无效覆盖静默退回默认
func TestHandleTurnModelOverride(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.ModelOverride = "qwen-max"

	if _, err := f.svc.HandleTurn(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.invoker.gotModel != "qwen-max" {
		t.Fatalf("expected override model, got %q", f.invoker.gotModel)
	}

	req.ModelOverride = "gpt-1000-turbo"
	if _, err := f.svc.HandleTurn(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.invoker.gotModel != "qwen-plus" {
		t.Fatalf("invalid override must degrade to default, got %q", f.invoker.gotModel)
	}
}

// 历史裁剪：接受 20 条，送入提示词的只有最近 10 条
func TestHandleTurnHistoryTrim(t *testing.T) {
	f := newFixture()
	req := validRequest()
	for i := 0; i < 20; i++ {
		req.ChatHistory = append(req.ChatHistory, model.HistoryEntry{
			Role:    "user",
			Content: fmt.Sprintf("turn-%d", i),
		})
	}

	if _, err := f.svc.HandleTurn(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.invoker.gotHist) != 10 {
		t.Fatalf("expected 10 history entries, got %d", len(f.invoker.gotHist))
	}
	if f.invoker.gotHist[0].Content != "turn-10" || f.invoker.gotHist[9].Content != "turn-19" {
		t.Fatalf("expected most recent history kept, got %+v", f.invoker.gotHist)
	}
}

// 日志后端故障对调用方完全不可见
func TestHandleTurnLogFailureInvisible(t *testing.T) {
	f := newFixture()
	f.logStore.err = fmt.Errorf("log store down")

	result, err := f.svc.HandleTurn(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("log failure must not surface: %v", err)
	}
	if result.Answer != "model answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}
