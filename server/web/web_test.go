package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/topi314/clubhouse/server"
	"github.com/topi314/clubhouse/server/clubs"
	"github.com/topi314/clubhouse/server/store"
	"github.com/topi314/clubhouse/server/store/memstore"
)

type testAPI struct {
	t       *testing.T
	srv     *server.Server
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Sweep.Every = 0

	srv := server.NewWithStore(cfg, memstore.New())
	t.Cleanup(srv.Stop)

	return &testAPI{t: t, srv: srv, handler: Routes(srv)}
}

func (a *testAPI) do(method string, path string, userID string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	rq := httptest.NewRequest(method, path, reader)
	if userID != "" {
		rq.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, rq)
	return rec
}

func (a *testAPI) expect(rec *httptest.ResponseRecorder, status int, v any) {
	a.t.Helper()
	if rec.Code != status {
		a.t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		a.t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func (a *testAPI) user(id string) {
	a.t.Helper()
	a.expect(a.do(http.MethodPut, "/api/v1/users/"+id, id, ensureUserRequest{Username: id, Email: id + "@campus.edu"}), http.StatusOK, nil)
}

func (a *testAPI) club(adminID string, name string) clubs.Club {
	a.t.Helper()
	var club clubs.Club
	a.expect(a.do(http.MethodPost, "/api/v1/clubs", adminID, clubs.CreateClubInput{Name: name}), http.StatusCreated, &club)
	return club
}

func TestClubLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	api.user("bob")
	api.user("carol")

	club := api.club("alice", "Chess")
	if club.MemberCount != 1 || club.AdminID != "alice" {
		t.Fatalf("unexpected club: %+v", club)
	}

	membersPath := "/api/v1/clubs/" + club.ID + "/members"
	api.expect(api.do(http.MethodPost, membersPath, "bob", nil), http.StatusCreated, nil)
	api.expect(api.do(http.MethodPost, membersPath, "bob", nil), http.StatusConflict, nil)
	api.expect(api.do(http.MethodPost, membersPath, "carol", nil), http.StatusCreated, nil)

	api.expect(api.do(http.MethodDelete, membersPath+"/bob", "carol", nil), http.StatusForbidden, nil)
	api.expect(api.do(http.MethodDelete, membersPath+"/bob", "alice", nil), http.StatusNoContent, nil)
	api.expect(api.do(http.MethodDelete, membersPath+"/carol", "carol", nil), http.StatusNoContent, nil)
	api.expect(api.do(http.MethodDelete, membersPath+"/alice", "alice", nil), http.StatusForbidden, nil)

	var members []clubs.Membership
	api.expect(api.do(http.MethodGet, membersPath, "", nil), http.StatusOK, &members)
	if len(members) != 1 || members[0].UserID != "alice" {
		t.Fatalf("expected only alice to remain, got %+v", members)
	}

	var got clubs.Club
	api.expect(api.do(http.MethodGet, "/api/v1/clubs/"+club.ID, "", nil), http.StatusOK, &got)
	if got.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", got.MemberCount)
	}
}

func TestEditAndTransfer(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	api.user("bob")
	club := api.club("alice", "Chess")
	clubPath := "/api/v1/clubs/" + club.ID

	var edited clubs.Club
	api.expect(api.do(http.MethodPatch, clubPath, "alice", map[string]any{"description": "Blitz on fridays"}), http.StatusOK, &edited)
	if edited.Description != "Blitz on fridays" || edited.Name != "Chess" {
		t.Fatalf("unexpected club after edit: %+v", edited)
	}

	api.expect(api.do(http.MethodPost, clubPath+"/admin", "alice", transferAdminRequest{UserID: "bob"}), http.StatusForbidden, nil)
	api.expect(api.do(http.MethodPost, clubPath+"/members", "bob", nil), http.StatusCreated, nil)

	var transferred clubs.Club
	api.expect(api.do(http.MethodPost, clubPath+"/admin", "alice", transferAdminRequest{UserID: "bob"}), http.StatusOK, &transferred)
	if transferred.AdminID != "bob" {
		t.Fatalf("expected bob to be admin, got %q", transferred.AdminID)
	}
}

func TestEventRegistration(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	club := api.club("alice", "Chess")

	var event eventResponse
	api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+club.ID+"/events", "alice", clubs.CreateEventInput{
		Title:            "Simul",
		MaxParticipants:  1,
		RegistrationOpen: true,
	}), http.StatusCreated, &event)
	if event.State != "open" {
		t.Fatalf("expected open event, got %q", event.State)
	}

	eventPath := "/api/v1/events/" + event.ID
	api.expect(api.do(http.MethodPost, eventPath+"/registrations", "u1", registerRequest{Contact: "u1@campus.edu"}), http.StatusCreated, &event)
	if event.State != "full" || event.RegisteredUsers["u1"] != "u1@campus.edu" {
		t.Fatalf("unexpected event after registration: %+v", event)
	}
	api.expect(api.do(http.MethodPost, eventPath+"/registrations", "u2", nil), http.StatusConflict, nil)
	api.expect(api.do(http.MethodDelete, eventPath+"/registrations/u1", "u2", nil), http.StatusForbidden, nil)
	api.expect(api.do(http.MethodDelete, eventPath+"/registrations/u1", "u1", nil), http.StatusNoContent, nil)

	api.expect(api.do(http.MethodPatch, eventPath, "u1", map[string]any{"registrationOpen": false}), http.StatusForbidden, nil)
	api.expect(api.do(http.MethodPatch, eventPath, "alice", map[string]any{"registrationOpen": false}), http.StatusOK, &event)
	if event.State != "closed" {
		t.Fatalf("expected closed event, got %q", event.State)
	}

	rec := api.do(http.MethodPost, eventPath+"/registrations", "u2", nil)
	var rs errorResponse
	api.expect(rec, http.StatusConflict, &rs)
	if !strings.Contains(rs.Error, "closed") {
		t.Fatalf("expected closed error, got %q", rs.Error)
	}

	var events []eventResponse
	api.expect(api.do(http.MethodGet, "/api/v1/clubs/"+club.ID+"/events", "", nil), http.StatusOK, &events)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestFeed(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	api.user("bob")
	chess := api.club("alice", "Chess")
	golf := api.club("alice", "Golf")
	api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+chess.ID+"/members", "bob", nil), http.StatusCreated, nil)

	api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+golf.ID+"/posts", "bob", clubs.CreatePostInput{Content: "hi"}), http.StatusForbidden, nil)
	for i := range 3 {
		api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+chess.ID+"/posts", "alice", clubs.CreatePostInput{Content: fmt.Sprintf("chess %d", i)}), http.StatusCreated, nil)
	}
	api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+golf.ID+"/posts", "alice", clubs.CreatePostInput{Content: "golf"}), http.StatusCreated, nil)

	var feed []clubs.Post
	api.expect(api.do(http.MethodGet, "/api/v1/users/bob/feed?limit=2", "", nil), http.StatusOK, &feed)
	if len(feed) != 2 || feed[0].Content != "chess 2" || feed[1].Content != "chess 1" {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	api.expect(api.do(http.MethodGet, "/api/v1/users/nobody/feed", "", nil), http.StatusOK, &feed)
	if len(feed) != 0 {
		t.Fatalf("expected empty feed, got %+v", feed)
	}
}

func TestFeedStream(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	club := api.club("alice", "Chess")

	ts := httptest.NewServer(api.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/users/alice/feed/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	rs, err := http.DefaultClient.Do(rq)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer rs.Body.Close()

	if ct := rs.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	lines := bufio.NewScanner(rs.Body)
	nextData := func() string {
		t.Helper()
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if data := nextData(); data != "[]" {
		t.Fatalf("expected empty initial feed, got %s", data)
	}

	api.expect(api.do(http.MethodPost, "/api/v1/clubs/"+club.ID+"/posts", "alice", clubs.CreatePostInput{Content: "hello"}), http.StatusCreated, nil)

	var posts []clubs.Post
	if err = json.Unmarshal([]byte(nextData()), &posts); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	if len(posts) != 1 || posts[0].Content != "hello" {
		t.Fatalf("unexpected feed: %+v", posts)
	}
}

func TestSweep(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")
	club := api.club("alice", "Chess")

	api.expect(api.do(http.MethodGet, "/api/v1/sweep", "", nil), http.StatusNotFound, nil)

	err := api.srv.Store.Update(context.Background(), store.NewPath(store.CollectionClubs, club.ID), map[string]any{"memberCount": 9})
	if err != nil {
		t.Fatalf("failed to drift count: %v", err)
	}

	var report sweepResponse
	api.expect(api.do(http.MethodPost, "/api/v1/sweep", "alice", nil), http.StatusOK, &report)
	if report.Fixed != 1 || len(report.Fixes) != 1 || report.Fixes[0].From != 9 || report.Fixes[0].To != 1 {
		t.Fatalf("unexpected sweep report: %+v", report)
	}

	api.expect(api.do(http.MethodGet, "/api/v1/sweep", "", nil), http.StatusOK, &report)
	if report.Fixed != 1 {
		t.Fatalf("expected last report, got %+v", report)
	}
}

func TestRequestErrors(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")

	api.expect(api.do(http.MethodPost, "/api/v1/clubs", "", clubs.CreateClubInput{Name: "Chess"}), http.StatusUnauthorized, nil)
	api.expect(api.do(http.MethodPost, "/api/v1/clubs", "alice", clubs.CreateClubInput{}), http.StatusBadRequest, nil)
	api.expect(api.do(http.MethodGet, "/api/v1/clubs/missing", "", nil), http.StatusNotFound, nil)
	api.expect(api.do(http.MethodPut, "/api/v1/users/bob", "alice", ensureUserRequest{}), http.StatusForbidden, nil)
	api.expect(api.do(http.MethodGet, "/nope", "", nil), http.StatusNotFound, nil)
	api.expect(api.do(http.MethodGet, "/health", "", nil), http.StatusOK, nil)

	rq := httptest.NewRequest(http.MethodPost, "/api/v1/clubs", strings.NewReader("{"))
	rq.Header.Set(UserIDHeader, "alice")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, rq)
	api.expect(rec, http.StatusBadRequest, nil)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: clubs.ErrClubNotFound, want: http.StatusNotFound},
		{err: clubs.ErrAlreadyMember, want: http.StatusConflict},
		{err: clubs.ErrAlreadyRegistered, want: http.StatusConflict},
		{err: clubs.ErrNotAuthorized, want: http.StatusForbidden},
		{err: clubs.ErrAdminMustTransfer, want: http.StatusForbidden},
		{err: clubs.ErrEventFull, want: http.StatusConflict},
		{err: clubs.ErrRegistrationClosed, want: http.StatusConflict},
		{err: fmt.Errorf("%w: connection refused", clubs.ErrStoreUnavailable), want: http.StatusServiceUnavailable},
		{err: fmt.Errorf("%w: bad", clubs.ErrInvalidInput), want: http.StatusBadRequest},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
