package tracker

import (
	"math"
	"strconv"
	"time"

	"github.com/lancelop89/shorts-tracker/internal/storage"
)

// TimestampLayout is the single format used for published_at and timestamp cells.
const TimestampLayout = "2006-01-02T15:04:05Z"

// minElapsedHours floors the age of an item at one second.
const minElapsedHours = 1.0 / 3600.0

// FormatTimestamp renders t in UTC at second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// ElapsedHours returns the hours between published and observed, never less than one second.
func ElapsedHours(published, observed time.Time) float64 {
	return math.Max(observed.Sub(published).Hours(), minElapsedHours)
}

// VPH returns views per hour since publication.
func VPH(views uint64, published, observed time.Time) float64 {
	return float64(views) / ElapsedHours(published, observed)
}

// EngagementRate returns (likes+comments)/views, or 0 when there are no views.
func EngagementRate(views, likes, comments uint64) float64 {
	if views == 0 {
		return 0
	}
	return float64(likes+comments) / float64(views)
}

// Sample is one observation of a tracked item.
type Sample struct {
	VideoID      string
	ChannelTitle string
	PublishedAt  time.Time
	ObservedAt   time.Time
	Views        uint64
	Likes        uint64
	Comments     uint64
}

// VPH of the sample.
func (s Sample) VPH() float64 {
	return VPH(s.Views, s.PublishedAt, s.ObservedAt)
}

// EngagementRate of the sample.
func (s Sample) EngagementRate() float64 {
	return EngagementRate(s.Views, s.Likes, s.Comments)
}

// Row renders the sample in header column order.
func (s Sample) Row() storage.Row {
	row := make(storage.Row, storage.NumColumns)
	row[storage.ColVideoID] = s.VideoID
	row[storage.ColChannelTitle] = s.ChannelTitle
	row[storage.ColPublishedAt] = FormatTimestamp(s.PublishedAt)
	row[storage.ColTimestamp] = FormatTimestamp(s.ObservedAt)
	row[storage.ColViewCount] = strconv.FormatUint(s.Views, 10)
	row[storage.ColLikeCount] = strconv.FormatUint(s.Likes, 10)
	row[storage.ColCommentCount] = strconv.FormatUint(s.Comments, 10)
	row[storage.ColVPH] = strconv.FormatFloat(s.VPH(), 'f', 2, 64)
	row[storage.ColEngagementRate] = strconv.FormatFloat(s.EngagementRate(), 'f', 4, 64)
	return row
}

// sampleKey is the dedup key of a persisted row.
type sampleKey struct {
	videoID   string
	timestamp string
}

func rowKey(row storage.Row) (sampleKey, bool) {
	if len(row) <= storage.ColTimestamp {
		return sampleKey{}, false
	}
	return sampleKey{videoID: row[storage.ColVideoID], timestamp: row[storage.ColTimestamp]}, true
}
