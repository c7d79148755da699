package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lancelop89/shorts-tracker/internal/errors"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), "fake-api-key")
	if err != nil {
		t.Errorf("NewClient() error = %v, wantErr %v", err, false)
	}
}

// newTestClient points the client at a fake API served by handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "test-key", WithAPIOptions(
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestChannelInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/channels") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "UC123" {
			t.Errorf("id = %q, want UC123", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"UC123","snippet":{"title":"Chan A"},"contentDetails":{"relatedPlaylists":{"uploads":"UU123"}}}]}`)
	})

	info, err := c.ChannelInfo(context.Background(), "UC123")
	if err != nil {
		t.Fatalf("ChannelInfo() error = %v", err)
	}
	if info.Title != "Chan A" || info.UploadsPlaylistID != "UU123" {
		t.Errorf("ChannelInfo() = %+v", info)
	}
}

func TestChannelInfoNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	})

	_, err := c.ChannelInfo(context.Background(), "UCmissing")
	if err == nil {
		t.Fatal("ChannelInfo() expected error")
	}
	if errors.IsRetriable(err) {
		t.Error("missing channel should not be retriable")
	}
}

func TestListUploads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("playlistId") != "UU123" || q.Get("maxResults") != "50" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"nextPageToken":"p2","items":[{"snippet":{"publishedAt":"2024-06-10T01:00:00Z","resourceId":{"videoId":"v1"}}}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"snippet":{"publishedAt":"2024-06-09T01:00:00Z","resourceId":{"videoId":"v2"}}}]}`)
	})

	page, err := c.ListUploads(context.Background(), "UU123", 50, "")
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if page.NextPageToken != "p2" || len(page.Items) != 1 || page.Items[0].VideoID != "v1" {
		t.Errorf("first page = %+v", page)
	}

	page, err = c.ListUploads(context.Background(), "UU123", 50, "p2")
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if page.NextPageToken != "" || page.Items[0].VideoID != "v2" || page.Items[0].PublishedAt != "2024-06-09T01:00:00Z" {
		t.Errorf("second page = %+v", page)
	}
}

func TestVideoDetailsAndCounters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("part"), "statistics") {
			fmt.Fprint(w, `{"items":[{"id":"v1","statistics":{"viewCount":"100","likeCount":"2","commentCount":"1"}}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"v1","contentDetails":{"duration":"PT45S"},"snippet":{"publishedAt":"2024-06-10T01:00:00Z"}}]}`)
	})

	details, err := c.VideoDetails(context.Background(), "v1")
	if err != nil {
		t.Fatalf("VideoDetails() error = %v", err)
	}
	if details.Duration != "PT45S" || details.PublishedAt != "2024-06-10T01:00:00Z" {
		t.Errorf("VideoDetails() = %+v", details)
	}

	stats, err := c.Counters(context.Background(), []string{"v1", "v-missing"})
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if got := stats["v1"]; got != (Counters{Views: 100, Likes: 2, Comments: 1}) {
		t.Errorf("Counters()[v1] = %+v", got)
	}
	if _, ok := stats["v-missing"]; ok {
		t.Error("missing video should be absent from counters")
	}
}

func TestCountersRejectsOversizedBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ids := make([]string, MaxBatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%d", i)
	}
	if _, err := c.Counters(context.Background(), ids); err == nil {
		t.Error("Counters() expected error for oversized batch")
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"code":503,"message":"backend error","errors":[{"reason":"backendError"}]}}`)
	})

	_, err := c.ChannelInfo(context.Background(), "UC123")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsRetriable(err) {
		t.Errorf("503 should be retriable: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"server error", &googleapi.Error{Code: 500}, true},
		{"too many requests", &googleapi.Error{Code: 429}, true},
		{"quota exceeded", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}, true},
		{"forbidden", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false},
		{"bad request", &googleapi.Error{Code: 400}, false},
		{"transport error", fmt.Errorf("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("call", tt.err).IsRetriable(); got != tt.retriable {
				t.Errorf("classify(%v).IsRetriable() = %v, want %v", tt.err, got, tt.retriable)
			}
		})
	}
}

// TestChannelInfo_Integration requires a valid YouTube API key set in the YOUTUBE_API_KEY environment variable.
func TestChannelInfo_Integration(t *testing.T) {
	apiKey := os.Getenv("YOUTUBE_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: YOUTUBE_API_KEY is not set")
	}

	// Google Developers channel ID
	channelID := "UC_x5XG1OV2P6uZZ5FSM9Ttw"

	ctx := context.Background()
	client, err := NewClient(ctx, apiKey)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	info, err := client.ChannelInfo(ctx, channelID)
	if err != nil {
		t.Fatalf("ChannelInfo() error = %v", err)
	}
	page, err := client.ListUploads(ctx, info.UploadsPlaylistID, 5, "")
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if len(page.Items) == 0 {
		t.Errorf("ListUploads() returned 0 items, expected at least one")
	}
	t.Logf("Channel %s has uploads playlist %s", info.Title, info.UploadsPlaylistID)
}
