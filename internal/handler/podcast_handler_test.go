package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

func samplePodcast() *model.Podcast {
	return &model.Podcast{
		ID:       "darknet-diaries",
		Title:    "Darknet Diaries",
		RSSURL:   "https://feeds.example.com/darknet.xml",
		ImageURL: "https://cdn.example.com/darknet.jpg",
	}
}

func TestAddPodcast_Created(t *testing.T) {
	var gotURL string
	svc := &mockPodcastService{
		addFn: func(_ context.Context, rawURL string) (*model.Podcast, error) {
			gotURL = rawURL
			return samplePodcast(), nil
		},
	}
	h := NewPodcastHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.AddPodcast(w, jsonRequest(t, http.MethodPost, "/api/podcasts", map[string]string{"url": "  https://darknetdiaries.com  "}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if gotURL != "https://darknetdiaries.com" {
		t.Errorf("url = %q, 前後の空白は除去されるべき", gotURL)
	}
	var body podcastResponse
	decodeBody(t, w, &body)
	if body.ID != "darknet-diaries" || body.RSSURL == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAddPodcast_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"不正なJSON", "{", nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"未知のフィールド", `{"url":"https://a.example.com","extra":1}`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"URLが空", map[string]string{"url": " "}, nil, http.StatusBadRequest, model.ErrCodeInvalidURL},
		{"フィード未検出", map[string]string{"url": "https://example.com"}, model.NewFeedNotDetectedError("https://example.com"), http.StatusUnprocessableEntity, model.ErrCodeFeedNotDetected},
		{"SSRF", map[string]string{"url": "http://127.0.0.1"}, model.NewSSRFBlockedError(), http.StatusBadRequest, model.ErrCodeSSRFBlocked},
		{"内部エラー", map[string]string{"url": "https://example.com"}, errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPodcastService{
				addFn: func(context.Context, string) (*model.Podcast, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					t.Fatal("service should not be called")
					return nil, nil
				},
			}
			w := httptest.NewRecorder()
			NewPodcastHandler(svc, testLogger()).AddPodcast(w, jsonRequest(t, http.MethodPost, "/api/podcasts", tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestListEpisodes(t *testing.T) {
	var gotLimit int
	svc := &mockPodcastService{
		episodesFn: func(_ context.Context, podcastID string, limit int) ([]*model.Episode, error) {
			gotLimit = limit
			return []*model.Episode{
				{PodcastID: podcastID, EpisodeNumber: 2, Title: "Second", PublishedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), EnclosureURL: "https://cdn.example.com/2.mp3"},
				{PodcastID: podcastID, EpisodeNumber: 1, Title: "First", Tags: []string{"security"}},
			}, nil
		},
	}
	h := NewPodcastHandler(svc, testLogger())

	req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/podcasts/darknet-diaries/episodes?limit=10", nil), "id", "darknet-diaries")
	w := httptest.NewRecorder()
	h.ListEpisodes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	var body []episodeResponse
	decodeBody(t, w, &body)
	if len(body) != 2 || body[0].EpisodeNumber != 2 || body[0].AudioURL == "" {
		t.Errorf("body = %+v", body)
	}
	if body[0].Tags == nil {
		t.Error("tags should be an empty array, not null")
	}

	for _, bad := range []string{"0", "-1", "abc", "501"} {
		req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/podcasts/x/episodes?limit="+bad, nil), "id", "x")
		w := httptest.NewRecorder()
		h.ListEpisodes(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", bad, w.Code)
		}
	}
}

func TestGetPodcast_NotFound(t *testing.T) {
	h := NewPodcastHandler(&mockPodcastService{}, testLogger())
	req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/podcasts/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.GetPodcast(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodePodcastNotFound {
		t.Errorf("code = %q", body.Code)
	}
}

func TestDeletePodcast(t *testing.T) {
	var deleted string
	svc := &mockPodcastService{deleteFn: func(_ context.Context, id string) error {
		deleted = id
		return nil
	}}
	req := withChiURLParams(httptest.NewRequest(http.MethodDelete, "/api/podcasts/darknet-diaries", nil), "id", "darknet-diaries")
	w := httptest.NewRecorder()
	NewPodcastHandler(svc, testLogger()).DeletePodcast(w, req)

	if w.Code != http.StatusNoContent || deleted != "darknet-diaries" {
		t.Errorf("status = %d, deleted = %q", w.Code, deleted)
	}
}

func TestGetImage(t *testing.T) {
	t.Run("画像あり", func(t *testing.T) {
		svc := &mockPodcastService{imageFn: func(context.Context, string) (*model.PodcastImage, error) {
			return &model.PodcastImage{Content: []byte("\x89PNG"), MimeType: "image/png"}, nil
		}}
		req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/podcasts/p/image", nil), "id", "p")
		w := httptest.NewRecorder()
		NewPodcastHandler(svc, testLogger()).GetImage(w, req)

		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" || w.Body.String() != "\x89PNG" {
			t.Errorf("status = %d, type = %q, body = %q", w.Code, w.Header().Get("Content-Type"), w.Body.String())
		}
		if w.Header().Get("Content-Length") != "4" {
			t.Errorf("Content-Length = %q", w.Header().Get("Content-Length"))
		}
	})

	t.Run("画像なし", func(t *testing.T) {
		req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/podcasts/p/image", nil), "id", "p")
		w := httptest.NewRecorder()
		NewPodcastHandler(&mockPodcastService{}, testLogger()).GetImage(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}
