package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// --- モック定義 ---

type mockPodcastService struct {
	addFn      func(ctx context.Context, rawURL string) (*model.Podcast, error)
	listFn     func(ctx context.Context) ([]*model.Podcast, error)
	getFn      func(ctx context.Context, podcastID string) (*model.Podcast, error)
	episodesFn func(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error)
	deleteFn   func(ctx context.Context, podcastID string) error
	imageFn    func(ctx context.Context, podcastID string) (*model.PodcastImage, error)
}

func (m *mockPodcastService) AddPodcast(ctx context.Context, rawURL string) (*model.Podcast, error) {
	if m.addFn != nil {
		return m.addFn(ctx, rawURL)
	}
	return nil, nil
}

func (m *mockPodcastService) List(ctx context.Context) ([]*model.Podcast, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPodcastService) Get(ctx context.Context, podcastID string) (*model.Podcast, error) {
	if m.getFn != nil {
		return m.getFn(ctx, podcastID)
	}
	return nil, model.NewPodcastNotFoundError(podcastID)
}

func (m *mockPodcastService) Episodes(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error) {
	if m.episodesFn != nil {
		return m.episodesFn(ctx, podcastID, limit)
	}
	return nil, nil
}

func (m *mockPodcastService) Delete(ctx context.Context, podcastID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, podcastID)
	}
	return nil
}

func (m *mockPodcastService) Image(ctx context.Context, podcastID string) (*model.PodcastImage, error) {
	if m.imageFn != nil {
		return m.imageFn(ctx, podcastID)
	}
	return nil, nil
}

type mockAuthService struct {
	registerFn     func(ctx context.Context, name, email, password string) (*model.User, error)
	authenticateFn func(ctx context.Context, email, password string) (*model.User, error)
	currentUserFn  func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}
	return &model.User{ID: userID, Name: "Test", Email: userID + "@example.com"}, nil
}

type mockFollowService struct {
	follows map[string][]string
	known   map[string]*model.Podcast
}

func newMockFollowService() *mockFollowService {
	return &mockFollowService{
		follows: map[string][]string{},
		known: map[string]*model.Podcast{
			"darknet-diaries": {ID: "darknet-diaries", Title: "Darknet Diaries"},
			"python-bytes":    {ID: "python-bytes", Title: "Python Bytes"},
		},
	}
}

func (m *mockFollowService) Follow(_ context.Context, userID, podcastID string) error {
	if _, ok := m.known[podcastID]; !ok {
		return model.NewPodcastNotFoundError(podcastID)
	}
	m.follows[userID] = append(m.follows[userID], podcastID)
	return nil
}

func (m *mockFollowService) Unfollow(_ context.Context, userID, podcastID string) error {
	kept := []string{}
	for _, id := range m.follows[userID] {
		if id != podcastID {
			kept = append(kept, id)
		}
	}
	m.follows[userID] = kept
	return nil
}

func (m *mockFollowService) Followed(_ context.Context, userID string) ([]*model.Podcast, error) {
	out := []*model.Podcast{}
	for _, id := range m.follows[userID] {
		out = append(out, m.known[id])
	}
	return out, nil
}

type mockSearcher struct {
	searchFn func(ctx context.Context, text string) (*model.SearchResult, error)
}

func (m *mockSearcher) Search(ctx context.Context, text string) (*model.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, text)
	}
	return &model.SearchResult{Podcasts: []*model.Podcast{}, Episodes: []*model.Episode{}}, nil
}

type mockJobService struct {
	createFn func(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (*model.Job, error)
	getFn    func(ctx context.Context, id string) (*model.Job, error)
}

func (m *mockJobService) Create(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (*model.Job, error) {
	if m.createFn != nil {
		return m.createFn(ctx, action, podcastID, episodeNumber)
	}
	return nil, nil
}

func (m *mockJobService) Get(ctx context.Context, id string) (*model.Job, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

type mockAIService struct {
	transcriptFn func(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
	askChatFn    func(ctx context.Context, podcastID string, episodeNumber int, email, question string) (*model.ChatQA, error)
}

func (m *mockAIService) Transcript(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	if m.transcriptFn != nil {
		return m.transcriptFn(ctx, podcastID, episodeNumber)
	}
	return nil, nil
}

func (m *mockAIService) AskChat(ctx context.Context, podcastID string, episodeNumber int, email, question string) (*model.ChatQA, error) {
	if m.askChatFn != nil {
		return m.askChatFn(ctx, podcastID, episodeNumber, email, question)
	}
	return nil, nil
}

type mockSessions struct {
	issued  []string
	cleared int
	err     error
}

func (m *mockSessions) Issue(w http.ResponseWriter, userID string) error {
	if m.err != nil {
		return m.err
	}
	m.issued = append(m.issued, userID)
	return nil
}

func (m *mockSessions) Clear(w http.ResponseWriter) {
	m.cleared++
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

// --- テストヘルパー ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest はJSONボディを持つリクエストを生成する。
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}
