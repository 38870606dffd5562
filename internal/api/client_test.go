package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hobbymatch/hobbymatch/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL, 2*time.Second, log.NewWithOutput("error", io.Discard))
}

func TestLoginDecodesIdentity(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Giriş başarılı",
			"userId":  "alice@example.com",
			"hobbies": []string{"chess", "climbing"},
		})
	}))

	res, err := c.Login(context.Background(), "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if gotBody["email"] != "alice@example.com" || gotBody["password"] != "hunter22" {
		t.Fatalf("request body = %v", gotBody)
	}
	if res.UserID != "alice@example.com" {
		t.Fatalf("user id = %q", res.UserID)
	}
	if len(res.Hobbies) != 2 || res.Hobbies[0] != "chess" {
		t.Fatalf("hobbies = %v", res.Hobbies)
	}
}

func TestLoginRejectionMapsToSentinel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Geçersiz e-posta veya şifre."})
	}))

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRequestMatchMapsLogicalRefusals(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		want   error
	}{
		{"active chat", "Zaten aktif bir sohbettesiniz.", ErrAlreadyInChat},
		{"already pooled", "Zaten eşleşme bekliyorsunuz.", ErrAlreadyWaiting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": tt.detail})
			}))

			_, err := c.RequestMatch(context.Background(), "alice@example.com")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnknownRefusalPassesThroughAsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Sunucu hatası."})
	}))

	_, err := c.RequestMatch(context.Background(), "alice@example.com")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Detail != "Sunucu hatası." {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestMessagesSinceQuery(t *testing.T) {
	var gotSince string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/messages/room_7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []Message{{Sender: "bob", Body: "hey", Timestamp: 1700000001.5}},
		})
	}))

	msgs, err := c.Messages(context.Background(), "room_7", 1700000000.25)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if gotSince != "1700000000.25" {
		t.Fatalf("since param = %q", gotSince)
	}
	if len(msgs) != 1 || msgs[0].Body != "hey" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestMessagesZeroSinceFetchesFullHistory(t *testing.T) {
	var hadSince bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hadSince = r.URL.Query().Has("since")
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []Message{}})
	}))

	if _, err := c.Messages(context.Background(), "room_7", 0); err != nil {
		t.Fatalf("messages: %v", err)
	}
	if hadSince {
		t.Fatal("since param sent for full history fetch")
	}
}

func TestGetRoomNullMeansNoRoom(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "alice@example.com" {
			t.Errorf("userId param = %q", got)
		}
		_, _ = w.Write([]byte(`{"roomId": null}`))
	}))

	room, err := c.GetRoom(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room != "" {
		t.Fatalf("room = %q, want empty", room)
	}
}

func TestCheckActive(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hasActiveChat": true}`))
	}))

	active, err := c.CheckActive(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("check active: %v", err)
	}
	if !active {
		t.Fatal("active = false, want true")
	}
}
