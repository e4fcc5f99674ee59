package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/topi314/clubhouse/internal/xquery"
	"github.com/topi314/clubhouse/server/clubs"
)

const maxFeedLimit = 100

func (h *handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := xquery.ParseLimit(r.URL.Query(), "limit", maxFeedLimit)

	posts, err := h.Clubs.Feed.Build(ctx, r.PathValue("user_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, limitPosts(posts, limit))
}

func limitPosts(posts []clubs.Post, limit int) []clubs.Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

// StreamFeed pushes the user's feed as server-sent events whenever it changes. The stream
// stays open until the client disconnects or the server shuts down.
func (h *handler) StreamFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := xquery.ParseLimit(r.URL.Query(), "limit", maxFeedLimit)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	feeds, err := h.Clubs.Feed.Watch(ctx, r.PathValue("user_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err = fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for posts := range feeds {
		data, err := json.Marshal(limitPosts(posts, limit))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode feed", slog.Any("err", err))
			return
		}
		if _, err = fmt.Fprintf(w, "event: feed\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}
