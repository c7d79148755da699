package discovery

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/lancelop89/shorts-tracker/internal/errors"
	"github.com/lancelop89/shorts-tracker/internal/retry"
	"github.com/lancelop89/shorts-tracker/internal/window"
	"github.com/lancelop89/shorts-tracker/internal/youtube"
)

type fakeSource struct {
	channels map[string]*youtube.ChannelInfo
	pages    map[string][]*youtube.UploadsPage
	details  map[string]*youtube.VideoDetails

	channelErrs map[string][]error
	pageErrs    map[string][]error
	detailErrs  map[string]error

	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		channels:    map[string]*youtube.ChannelInfo{},
		pages:       map[string][]*youtube.UploadsPage{},
		details:     map[string]*youtube.VideoDetails{},
		channelErrs: map[string][]error{},
		pageErrs:    map[string][]error{},
		detailErrs:  map[string]error{},
		calls:       map[string]int{},
	}
}

func popErr(errs map[string][]error, key string) error {
	queue := errs[key]
	if len(queue) == 0 {
		return nil
	}
	errs[key] = queue[1:]
	return queue[0]
}

func (f *fakeSource) ChannelInfo(ctx context.Context, channelID string) (*youtube.ChannelInfo, error) {
	f.calls["channel:"+channelID]++
	if err := popErr(f.channelErrs, channelID); err != nil {
		return nil, err
	}
	info, ok := f.channels[channelID]
	if !ok {
		return nil, errors.API("channel not found", nil)
	}
	return info, nil
}

func (f *fakeSource) ListUploads(ctx context.Context, playlistID string, pageSize int64, pageToken string) (*youtube.UploadsPage, error) {
	f.calls["uploads:"+playlistID]++
	if pageSize != PageSize {
		return nil, errors.Validation("unexpected page size", nil)
	}
	if err := popErr(f.pageErrs, playlistID); err != nil {
		return nil, err
	}
	pages := f.pages[playlistID]
	idx := 0
	if pageToken != "" {
		for i := range pages {
			if pages[i].NextPageToken == pageToken {
				idx = i + 1
			}
		}
	}
	if idx >= len(pages) {
		return &youtube.UploadsPage{}, nil
	}
	return pages[idx], nil
}

func (f *fakeSource) VideoDetails(ctx context.Context, videoID string) (*youtube.VideoDetails, error) {
	f.calls["details:"+videoID]++
	if err := f.detailErrs[videoID]; err != nil {
		return nil, err
	}
	d, ok := f.details[videoID]
	if !ok {
		return nil, errors.API("video not found", nil)
	}
	return d, nil
}

// 10:30 IST on 2024-06-10; the window starts at 2024-06-09T18:30:00Z.
func testResolver() *window.Resolver {
	return window.NewResolver(func() time.Time {
		return time.Date(2024, 6, 10, 5, 0, 0, 0, time.UTC)
	})
}

func testEngine(src Source, isolate bool) *Engine {
	return NewEngine(src, testResolver(), Options{
		IsolateChannelFailures: isolate,
		Retry:                  retry.SingleRetry(0),
	}, nil)
}

func addChannel(f *fakeSource, id, title string, pages ...*youtube.UploadsPage) {
	playlist := "UU" + id
	f.channels[id] = &youtube.ChannelInfo{ID: id, Title: title, UploadsPlaylistID: playlist}
	f.pages[playlist] = pages
}

func addVideo(f *fakeSource, id, duration, published string) {
	f.details[id] = &youtube.VideoDetails{ID: id, Duration: duration, PublishedAt: published}
}

func TestDiscoverFiltersByWindowAndDuration(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A",
		&youtube.UploadsPage{
			Items: []youtube.UploadEntry{
				{VideoID: "short1", PublishedAt: "2024-06-10T02:00:00Z"},
				{VideoID: "long1", PublishedAt: "2024-06-10T01:00:00Z"},
				{VideoID: "yesterday", PublishedAt: "2024-06-09T18:29:59Z"},
			},
			NextPageToken: "p2",
		},
		&youtube.UploadsPage{
			Items: []youtube.UploadEntry{
				{VideoID: "edge", PublishedAt: "2024-06-09T18:30:00Z"},
			},
		},
	)
	addChannel(f, "C2", "Chan B", &youtube.UploadsPage{
		Items: []youtube.UploadEntry{
			{VideoID: "exact180", PublishedAt: "2024-06-10T03:00:00Z"},
			{VideoID: "tomorrow", PublishedAt: "2024-06-10T18:30:00Z"},
		},
	})
	addVideo(f, "short1", "PT45S", "2024-06-10T02:00:00Z")
	addVideo(f, "long1", "PT3M1S", "2024-06-10T01:00:00Z")
	addVideo(f, "edge", "PT1M", "2024-06-09T18:30:00Z")
	addVideo(f, "exact180", "PT3M", "2024-06-10T03:00:00Z")

	res := testEngine(f, false).Discover(context.Background(), []string{"C1", "C2"})

	if res.AllFailed {
		t.Fatalf("AllFailed = true, logs: %v", res.Logs)
	}
	wantOrder := []string{"short1", "edge", "exact180"}
	if !reflect.DeepEqual(res.Order, wantOrder) {
		t.Errorf("Order = %v, want %v", res.Order, wantOrder)
	}
	if res.Channels["exact180"] != "Chan B" || res.Channels["short1"] != "Chan A" {
		t.Errorf("Channels = %v", res.Channels)
	}
	if want := time.Date(2024, 6, 9, 18, 30, 0, 0, time.UTC); !res.Published["edge"].Equal(want) {
		t.Errorf("Published[edge] = %v, want %v", res.Published["edge"], want)
	}
	if f.calls["details:yesterday"] != 0 || f.calls["details:tomorrow"] != 0 {
		t.Error("details fetched for items outside the window")
	}
	if len(res.Logs) == 0 {
		t.Error("expected progress logs")
	}
}

func TestDiscoverUnparseableDurationIsShort(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A", &youtube.UploadsPage{
		Items: []youtube.UploadEntry{{VideoID: "odd", PublishedAt: "2024-06-10T02:00:00Z"}},
	})
	addVideo(f, "odd", "garbage", "2024-06-10T02:00:00Z")

	res := testEngine(f, false).Discover(context.Background(), []string{"C1"})
	if !reflect.DeepEqual(res.Order, []string{"odd"}) {
		t.Errorf("Order = %v, want [odd]", res.Order)
	}
}

func TestDiscoverSkipsItemOnDetailFailure(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A", &youtube.UploadsPage{
		Items: []youtube.UploadEntry{
			{VideoID: "broken", PublishedAt: "2024-06-10T02:00:00Z"},
			{VideoID: "badtime", PublishedAt: "2024-06-10T02:00:00Z"},
			{VideoID: "ok", PublishedAt: "2024-06-10T02:30:00Z"},
		},
	})
	f.detailErrs["broken"] = errors.Temporary("backend error", nil)
	addVideo(f, "badtime", "PT30S", "not-a-time")
	addVideo(f, "ok", "PT30S", "2024-06-10T02:30:00Z")

	res := testEngine(f, false).Discover(context.Background(), []string{"C1"})
	if !reflect.DeepEqual(res.Order, []string{"ok"}) {
		t.Errorf("Order = %v, want [ok]", res.Order)
	}
	if f.calls["details:broken"] != 2 {
		t.Errorf("details attempts = %d, want 2", f.calls["details:broken"])
	}
}

func TestDiscoverRetriesTransientChannelError(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A", &youtube.UploadsPage{
		Items: []youtube.UploadEntry{{VideoID: "v", PublishedAt: "2024-06-10T02:00:00Z"}},
	})
	addVideo(f, "v", "PT10S", "2024-06-10T02:00:00Z")
	f.channelErrs["C1"] = []error{errors.Temporary("quota", nil)}

	res := testEngine(f, false).Discover(context.Background(), []string{"C1"})
	if res.AllFailed || len(res.Order) != 1 {
		t.Fatalf("expected recovery after retry, got %+v", res)
	}
	if f.calls["channel:C1"] != 2 {
		t.Errorf("channel attempts = %d, want 2", f.calls["channel:C1"])
	}
}

func TestDiscoverChannelFailure(t *testing.T) {
	tests := []struct {
		name      string
		isolate   bool
		wantOrder []string
		wantAll   bool
	}{
		{"fail fast voids the pass", false, nil, true},
		{"isolation keeps other channels", true, []string{"v1", "v2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSource()
			addChannel(f, "C1", "Chan A", &youtube.UploadsPage{
				Items: []youtube.UploadEntry{{VideoID: "v1", PublishedAt: "2024-06-10T02:00:00Z"}},
			})
			addVideo(f, "v1", "PT10S", "2024-06-10T02:00:00Z")
			addChannel(f, "C3", "Chan C", &youtube.UploadsPage{
				Items: []youtube.UploadEntry{{VideoID: "v2", PublishedAt: "2024-06-10T02:00:00Z"}},
			})
			addVideo(f, "v2", "PT10S", "2024-06-10T02:00:00Z")
			// C2 is unknown and returns a non-retriable error.

			res := testEngine(f, tt.isolate).Discover(context.Background(), []string{"C1", "C2", "C3"})

			if !reflect.DeepEqual(res.Order, tt.wantOrder) {
				t.Errorf("Order = %v, want %v", res.Order, tt.wantOrder)
			}
			if res.AllFailed != tt.wantAll {
				t.Errorf("AllFailed = %v, want %v", res.AllFailed, tt.wantAll)
			}
			if f.calls["channel:C2"] != 1 {
				t.Errorf("non-retriable error attempted %d times", f.calls["channel:C2"])
			}
			if !tt.isolate && f.calls["channel:C3"] != 0 {
				t.Error("fail-fast should stop before later channels")
			}
		})
	}
}

func TestDiscoverPageFailureAfterRetry(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A", &youtube.UploadsPage{
		Items: []youtube.UploadEntry{{VideoID: "v1", PublishedAt: "2024-06-10T02:00:00Z"}},
	})
	addVideo(f, "v1", "PT10S", "2024-06-10T02:00:00Z")
	f.pageErrs["UUC1"] = []error{
		errors.Temporary("first", nil),
		errors.Temporary("second", nil),
	}

	res := testEngine(f, false).Discover(context.Background(), []string{"C1"})
	if !res.AllFailed || len(res.Order) != 0 {
		t.Errorf("expected failed pass, got %+v", res)
	}
	if f.calls["uploads:UUC1"] != 2 {
		t.Errorf("uploads attempts = %d, want 2", f.calls["uploads:UUC1"])
	}
}

func TestDiscoverNothingFound(t *testing.T) {
	f := newFakeSource()
	addChannel(f, "C1", "Chan A", &youtube.UploadsPage{})

	res := testEngine(f, false).Discover(context.Background(), []string{"C1"})
	if !res.AllFailed {
		t.Error("AllFailed should be set when nothing is found")
	}

	res = testEngine(f, false).Discover(context.Background(), nil)
	if !res.AllFailed || len(res.Order) != 0 {
		t.Errorf("empty channel list: %+v", res)
	}
}
