package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/blog/internal/post"
)

// PostLister は記事一覧の取得に必要なインターフェース。
type PostLister interface {
	List(ctx context.Context) ([]post.View, error)
}

// FeedHandlerConfig はRSSフィードのチャンネル情報。
type FeedHandlerConfig struct {
	BaseURL     string
	Title       string
	Description string
}

// FeedHandler は記事一覧をRSS 2.0として配信するHTTPハンドラー。
type FeedHandler struct {
	lister PostLister
	config FeedHandlerConfig
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(lister PostLister, config FeedHandlerConfig) *FeedHandler {
	if config.Title == "" {
		config.Title = "Blog"
	}
	if config.Description == "" {
		config.Description = config.Title
	}
	return &FeedHandler{lister: lister, config: config}
}

// Feed は全記事を新しい順に並べたRSS 2.0を返す。
// GET /feed.xml
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	views, err := h.lister.List(r.Context())
	if err != nil {
		slog.Error("failed to build feed", slog.String("error", err.Error()))
		http.Error(w, "failed to build feed", http.StatusInternalServerError)
		return
	}

	feed := &feeds.Feed{
		Title:       h.config.Title,
		Link:        &feeds.Link{Href: h.config.BaseURL + "/"},
		Description: h.config.Description,
		Items:       make([]*feeds.Item, 0, len(views)),
	}
	if len(views) > 0 {
		feed.Updated = views[0].CreatedAt.UTC()
	}

	for _, v := range views {
		link := h.config.BaseURL + "/post.html?id=" + strconv.FormatInt(v.ID, 10)
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       v.Title,
			Link:        &feeds.Link{Href: link},
			Id:          link,
			IsPermaLink: "true",
			Description: v.ContentHTML,
			Created:     v.CreatedAt.UTC(),
		})
	}

	body, err := feed.ToRss()
	if err != nil {
		slog.Error("failed to encode feed", slog.String("error", err.Error()))
		http.Error(w, "failed to build feed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
