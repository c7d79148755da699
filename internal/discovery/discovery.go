// Package discovery finds short videos published today across a fixed list of channels.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/lancelop89/shorts-tracker/internal/logger"
	"github.com/lancelop89/shorts-tracker/internal/metrics"
	"github.com/lancelop89/shorts-tracker/internal/retry"
	"github.com/lancelop89/shorts-tracker/internal/shortform"
	"github.com/lancelop89/shorts-tracker/internal/window"
	"github.com/lancelop89/shorts-tracker/internal/youtube"
)

// PageSize is the number of upload entries requested per page.
const PageSize = 50

// Source is the subset of the YouTube client used for discovery.
type Source interface {
	ChannelInfo(ctx context.Context, channelID string) (*youtube.ChannelInfo, error)
	ListUploads(ctx context.Context, playlistID string, pageSize int64, pageToken string) (*youtube.UploadsPage, error)
	VideoDetails(ctx context.Context, videoID string) (*youtube.VideoDetails, error)
}

// Result is the outcome of one discovery pass.
type Result struct {
	// Order lists discovered ids in the order they were found.
	Order     []string
	Channels  map[string]string
	Published map[string]time.Time
	Logs      []string
	// AllFailed is set when nothing was found or a channel could not be read.
	AllFailed bool
}

func newResult() *Result {
	return &Result{
		Channels:  make(map[string]string),
		Published: make(map[string]time.Time),
	}
}

func (r *Result) add(videoID, channel string, published time.Time) {
	if _, seen := r.Channels[videoID]; !seen {
		r.Order = append(r.Order, videoID)
	}
	r.Channels[videoID] = channel
	r.Published[videoID] = published
}

// failed discards everything found so far.
func (r *Result) failed() *Result {
	r.Order = nil
	r.Channels = make(map[string]string)
	r.Published = make(map[string]time.Time)
	r.AllFailed = true
	return r
}

// Options tunes discovery behaviour.
type Options struct {
	// IsolateChannelFailures skips a channel whose metadata or uploads cannot
	// be read instead of voiding the whole pass.
	IsolateChannelFailures bool
	Retry                  retry.Config
	Metrics                *metrics.Metrics
}

// Engine walks channels and filters their uploads.
type Engine struct {
	source   Source
	resolver *window.Resolver
	opts     Options
	log      *logger.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(source Source, resolver *window.Resolver, opts Options, log *logger.Logger) *Engine {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{source: source, resolver: resolver, opts: opts, log: log}
}

func (e *Engine) logf(res *Result, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	res.Logs = append(res.Logs, msg)
	e.log.Info(msg, nil)
}

// Discover returns the shorts published today across channelIDs, in order.
func (e *Engine) Discover(ctx context.Context, channelIDs []string) *Result {
	res := newResult()

	for idx, channelID := range channelIDs {
		info, err := retry.Value(ctx, e.opts.Retry, func(ctx context.Context) (*youtube.ChannelInfo, error) {
			return e.source.ChannelInfo(ctx, channelID)
		})
		if err != nil {
			e.log.Error("Error fetching channel info", err, map[string]string{"channel_id": channelID})
			if e.opts.IsolateChannelFailures {
				e.logf(res, "Error fetching channel info for %s. Skipping channel.", channelID)
				continue
			}
			e.logf(res, "Error fetching channel info for %s. Aborting discovery.", channelID)
			return res.failed()
		}

		e.logf(res, "Checking channel %d/%d: '%s'", idx+1, len(channelIDs), info.Title)

		if err := e.walkUploads(ctx, info, res); err != nil {
			e.log.Error("Error fetching playlist items", err, map[string]string{
				"channel_id":  channelID,
				"playlist_id": info.UploadsPlaylistID,
			})
			if e.opts.IsolateChannelFailures {
				e.logf(res, "Error fetching uploads for '%s'. Skipping channel.", info.Title)
				continue
			}
			e.logf(res, "Error fetching uploads for '%s'. Aborting discovery.", info.Title)
			return res.failed()
		}

		if len(res.Order) > 0 {
			e.logf(res, "Found %d shorts so far (including this channel).", len(res.Order))
		}
	}

	if len(res.Order) == 0 {
		e.logf(res, "No shorts published today in IST across all channels.")
		res.AllFailed = true
		return res
	}

	e.logf(res, "Total discovered shorts: %d", len(res.Order))
	e.opts.Metrics.RecordDiscovered(len(res.Order))
	return res
}

// walkUploads pages through a channel's uploads playlist until the cursor is exhausted.
func (e *Engine) walkUploads(ctx context.Context, info *youtube.ChannelInfo, res *Result) error {
	pageToken := ""
	for {
		page, err := retry.Value(ctx, e.opts.Retry, func(ctx context.Context) (*youtube.UploadsPage, error) {
			return e.source.ListUploads(ctx, info.UploadsPlaylistID, PageSize, pageToken)
		})
		if err != nil {
			return err
		}

		for _, entry := range page.Items {
			if !e.resolver.ContainsRFC3339(entry.PublishedAt) {
				continue
			}
			e.inspect(ctx, info.Title, entry.VideoID, res)
		}

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// inspect fetches one candidate's details and records it when it is a short.
func (e *Engine) inspect(ctx context.Context, channelTitle, videoID string, res *Result) {
	details, err := retry.Value(ctx, e.opts.Retry, func(ctx context.Context) (*youtube.VideoDetails, error) {
		return e.source.VideoDetails(ctx, videoID)
	})
	if err != nil {
		e.log.Warning("Could not fetch video details", err, map[string]string{"video_id": videoID})
		e.logf(res, "Could not fetch contentDetails for %s. Skipping.", videoID)
		e.opts.Metrics.RecordSkipped("details_unavailable", 1)
		return
	}

	if _, err := shortform.Parse(details.Duration); err != nil {
		e.log.Warning("Unparseable duration treated as 0 seconds", err, map[string]string{"video_id": videoID})
	}
	if !shortform.IsShortForm(details.Duration) {
		e.opts.Metrics.RecordSkipped("long_form", 1)
		return
	}

	published, err := time.Parse(time.RFC3339, details.PublishedAt)
	if err != nil {
		e.logf(res, "Unparseable publishedAt %q for %s. Skipping.", details.PublishedAt, videoID)
		e.opts.Metrics.RecordSkipped("bad_published_at", 1)
		return
	}
	res.add(videoID, channelTitle, published.UTC())
}
