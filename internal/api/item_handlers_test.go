package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/middleware"
)

// itemRouter mounts the item handlers the way NewRouter does.
func itemRouter(h *ItemHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireUser)
	r.Route("/items/{id}", func(r chi.Router) {
		r.Post("/like", h.Like)
		r.Delete("/like", h.Unlike)
		r.Post("/view", h.RecordView)
	})
	return r
}

func doItemRequest(r http.Handler, method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.UserIDHeader, userID)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func createItem(t *testing.T, store *item.InMemoryItemRepository) *item.Item {
	t.Helper()
	it := &item.Item{OwnerID: "owner", Tags: []string{"Jazz", "jazz "}, CreatedAt: time.Now().Add(-time.Minute)}
	if err := store.Create(context.Background(), it); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return it
}

func TestItemHandlers_LikeUnlike(t *testing.T) {
	store := item.NewInMemoryItemRepository()
	it := createItem(t, store)
	r := itemRouter(NewItemHandlers(store))
	path := "/items/" + it.ID + "/like"

	steps := []struct {
		method      string
		wantLiked   bool
		wantChanged bool
		wantLikes   int64
	}{
		{http.MethodPost, true, true, 1},
		{http.MethodPost, true, false, 1},
		{http.MethodDelete, false, true, 0},
		{http.MethodDelete, false, false, 0},
	}

	for i, step := range steps {
		rr := doItemRequest(r, step.method, path, "user-1")
		if rr.Code != http.StatusOK {
			t.Fatalf("step %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
		var resp LikeResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("step %d: decode: %v", i, err)
		}
		if resp.ItemID != it.ID || resp.Liked != step.wantLiked || resp.Changed != step.wantChanged {
			t.Errorf("step %d: got %+v", i, resp)
		}

		got, err := store.GetByID(context.Background(), it.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Likes != step.wantLikes {
			t.Errorf("step %d: likes = %d, want %d", i, got.Likes, step.wantLikes)
		}
	}
}

func TestItemHandlers_LikeUpdatesProfile(t *testing.T) {
	store := item.NewInMemoryItemRepository()
	it := createItem(t, store)
	r := itemRouter(NewItemHandlers(store))

	doItemRequest(r, http.MethodPost, "/items/"+it.ID+"/like", "user-1")

	tags, err := store.GetUserLikedTags(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUserLikedTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0] != "jazz" {
		t.Errorf("profile = %v, want [jazz]", tags)
	}
}

func TestItemHandlers_RecordView(t *testing.T) {
	store := item.NewInMemoryItemRepository()
	it := createItem(t, store)
	r := itemRouter(NewItemHandlers(store))

	for range 2 {
		if rr := doItemRequest(r, http.MethodPost, "/items/"+it.ID+"/view", "user-1"); rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
	}

	got, _ := store.GetByID(context.Background(), it.ID)
	if got.Views != 2 {
		t.Errorf("views = %d, want 2", got.Views)
	}
}

func TestItemHandlers_NotFound(t *testing.T) {
	store := item.NewInMemoryItemRepository()
	inactive := createItem(t, store)
	if err := store.Deactivate(context.Background(), inactive.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	r := itemRouter(NewItemHandlers(store))

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"like missing", http.MethodPost, "/items/missing/like"},
		{"unlike missing", http.MethodDelete, "/items/missing/like"},
		{"view missing", http.MethodPost, "/items/missing/view"},
		{"like inactive", http.MethodPost, "/items/" + inactive.ID + "/like"},
		{"view inactive", http.MethodPost, "/items/" + inactive.ID + "/view"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doItemRequest(r, tt.method, tt.path, "user-1")
			if rr.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", rr.Code)
			}
			if got := decodeError(t, rr).Error.Code; got != ErrCodeNotFound {
				t.Errorf("expected code %s, got %s", ErrCodeNotFound, got)
			}
		})
	}
}
