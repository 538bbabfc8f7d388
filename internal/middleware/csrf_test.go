package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/podscribe/internal/model"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethodsPassWithoutToken(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/api/podcasts", nil))

			if !called {
				t.Fatalf("%s: handler should have been called", method)
			}
			if findCookie(w.Result(), csrfCookieName) == nil {
				t.Errorf("%s: CSRF cookie should be issued", method)
			}
		})
	}
}

func TestCSRFMiddleware_IssuedCookieAttributes(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{CookieDomain: "example.com"})
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts", nil))

	c := findCookie(w.Result(), csrfCookieName)
	if c == nil {
		t.Fatal("expected CSRF cookie")
	}
	if len(c.Value) != 64 || c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", c)
	}
}

func TestCSRFMiddleware_ExistingCookieNotReplaced(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/podcasts", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, req)

	if findCookie(w.Result(), csrfCookieName) != nil {
		t.Error("CSRF cookie should not be re-set when already present")
	}
}

func TestCSRFMiddleware_StateChangingRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"POST トークンなし", http.MethodPost, "", "", http.StatusForbidden},
		{"POST ヘッダーなし", http.MethodPost, "token-a", "", http.StatusForbidden},
		{"POST Cookieなし", http.MethodPost, "", "token-a", http.StatusForbidden},
		{"POST 不一致", http.MethodPost, "token-a", "token-b", http.StatusForbidden},
		{"POST 一致", http.MethodPost, "token-a", "token-a", http.StatusOK},
		{"DELETE トークンなし", http.MethodDelete, "", "", http.StatusForbidden},
		{"DELETE 一致", http.MethodDelete, "token-a", "token-a", http.StatusOK},
		{"PUT トークンなし", http.MethodPut, "", "", http.StatusForbidden},
		{"PATCH トークンなし", http.MethodPatch, "", "", http.StatusForbidden},
	}

	mw := NewCSRFMiddleware(CSRFConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/podcasts/talk-python/follow", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Code != model.ErrCodeCSRFInvalid {
					t.Errorf("body = %+v, err = %v", body, err)
				}
			}
		})
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	t.Run("新規発行", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		c := findCookie(w.Result(), csrfCookieName)
		if body.Token == "" || c == nil || c.Value != body.Token {
			t.Errorf("token = %q, cookie = %+v", body.Token, c)
		}
	})

	t.Run("既存トークンを返す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		json.NewDecoder(w.Body).Decode(&body)
		if body.Token != "existing-csrf-token" {
			t.Errorf("token = %q, want existing-csrf-token", body.Token)
		}
	})
}
