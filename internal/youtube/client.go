package youtube

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lancelop89/shorts-tracker/internal/errors"
	"github.com/lancelop89/shorts-tracker/internal/metrics"
)

// MaxBatchSize is the largest number of ids accepted by a single videos.list call.
const MaxBatchSize = 50

// Client provides a wrapper around the YouTube Data API.
type Client struct {
	service *youtube.Service
	timeout time.Duration
	metrics *metrics.Metrics
}

// ChannelInfo is the part of a channel resource needed for discovery.
type ChannelInfo struct {
	ID                string
	Title             string
	UploadsPlaylistID string
}

// UploadEntry is one item of a channel's uploads playlist.
type UploadEntry struct {
	VideoID     string
	PublishedAt string
}

// UploadsPage is one page of a channel's upload history.
type UploadsPage struct {
	Items         []UploadEntry
	NextPageToken string
}

// VideoDetails holds what the classifier needs about a single video.
type VideoDetails struct {
	ID          string
	Duration    string
	PublishedAt string
}

// Counters are the raw statistics of a video.
type Counters struct {
	Views    uint64
	Likes    uint64
	Comments uint64
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	metrics    *metrics.Metrics
	apiOptions []option.ClientOption
}

// WithRequestTimeout bounds every API call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithMetrics records every API call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithAPIOptions passes extra options to the underlying service.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(o *clientOptions) { o.apiOptions = append(o.apiOptions, opts...) }
}

// NewClient creates a new YouTube API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, o.apiOptions...)
	service, err := youtube.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, errors.Config("youtube.NewService", err)
	}
	return &Client{service: service, timeout: o.timeout, metrics: o.metrics}, nil
}

// ChannelInfo fetches the title and uploads playlist of a channel.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	timer := metrics.NewTimer()
	resp, err := c.service.Channels.List([]string{"snippet", "contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	c.metrics.RecordAPICall("youtube", "channels.list", metrics.Status(err), timer.ObserveDuration())
	if err != nil {
		return nil, classify("failed to get channel details", err).With("channel_id", channelID)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		return nil, errors.API(fmt.Sprintf("channel not found: %s", channelID), nil).With("channel_id", channelID)
	}

	item := resp.Items[0]
	info := &ChannelInfo{
		ID:                channelID,
		UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
	}
	if item.Snippet != nil {
		info.Title = item.Snippet.Title
	}
	return info, nil
}

// ListUploads fetches one page of an uploads playlist.
func (c *Client) ListUploads(ctx context.Context, playlistID string, pageSize int64, pageToken string) (*UploadsPage, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	call := c.service.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(playlistID).
		MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	timer := metrics.NewTimer()
	resp, err := call.Context(ctx).Do()
	c.metrics.RecordAPICall("youtube", "playlistItems.list", metrics.Status(err), timer.ObserveDuration())
	if err != nil {
		return nil, classify("failed to get playlist items", err).With("playlist_id", playlistID)
	}

	page := &UploadsPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil {
			continue
		}
		page.Items = append(page.Items, UploadEntry{
			VideoID:     item.Snippet.ResourceId.VideoId,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return page, nil
}

// VideoDetails fetches the duration and publish time of a single video.
func (c *Client) VideoDetails(ctx context.Context, videoID string) (*VideoDetails, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	timer := metrics.NewTimer()
	resp, err := c.service.Videos.List([]string{"contentDetails", "snippet"}).
		Id(videoID).
		Context(ctx).
		Do()
	c.metrics.RecordAPICall("youtube", "videos.list", metrics.Status(err), timer.ObserveDuration())
	if err != nil {
		return nil, classify("failed to get video details", err).With("video_id", videoID)
	}
	if len(resp.Items) == 0 {
		return nil, errors.API(fmt.Sprintf("video not found: %s", videoID), nil).With("video_id", videoID)
	}

	item := resp.Items[0]
	details := &VideoDetails{ID: item.Id}
	if item.ContentDetails != nil {
		details.Duration = item.ContentDetails.Duration
	}
	if item.Snippet != nil {
		details.PublishedAt = item.Snippet.PublishedAt
	}
	return details, nil
}

// Counters fetches view, like and comment counts for up to MaxBatchSize videos.
// Videos missing from the response are absent from the map.
func (c *Client) Counters(ctx context.Context, videoIDs []string) (map[string]Counters, error) {
	if len(videoIDs) == 0 {
		return map[string]Counters{}, nil
	}
	if len(videoIDs) > MaxBatchSize {
		return nil, errors.Validation(fmt.Sprintf("at most %d ids per request, got %d", MaxBatchSize, len(videoIDs)), nil)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	timer := metrics.NewTimer()
	resp, err := c.service.Videos.List([]string{"statistics"}).
		Id(videoIDs...).
		MaxResults(MaxBatchSize).
		Context(ctx).
		Do()
	c.metrics.RecordAPICall("youtube", "videos.list", metrics.Status(err), timer.ObserveDuration())
	if err != nil {
		return nil, classify("failed to get video statistics", err)
	}

	stats := make(map[string]Counters, len(resp.Items))
	for _, item := range resp.Items {
		var counters Counters
		if item.Statistics != nil {
			counters = Counters{
				Views:    item.Statistics.ViewCount,
				Likes:    item.Statistics.LikeCount,
				Comments: item.Statistics.CommentCount,
			}
		}
		stats[item.Id] = counters
	}
	return stats, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify marks quota, rate-limit, server and transport failures as temporary.
func classify(message string, err error) *errors.AppError {
	var apiErr *googleapi.Error
	if goerrors.As(err, &apiErr) {
		if isTransientStatus(apiErr) {
			return errors.Temporary(message, err)
		}
		return errors.API(message, err)
	}
	return errors.Temporary(message, err)
}

func isTransientStatus(e *googleapi.Error) bool {
	switch {
	case e.Code >= http.StatusInternalServerError:
		return true
	case e.Code == http.StatusTooManyRequests:
		return true
	case e.Code == http.StatusForbidden:
		for _, item := range e.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
				return true
			}
		}
	}
	return false
}
