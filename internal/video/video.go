package video

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTitle     = "YouTube Video"
	DefaultOEmbedURL = "https://www.youtube.com/oembed"
)

var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:watch\?v=|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// ParseVideoID extracts the 11 character video id from a watch, shorts or
// short-link URL.
func ParseVideoID(rawURL string) (string, bool) {
	match := videoIDPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// FormatDuration renders seconds as m:ss. Negative values render empty.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		return ""
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func CanonicalURL(videoID string) string {
	return "https://youtu.be/" + videoID
}

func ThumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

// PageInfo is what the overlay reports about the video page it runs on.
type PageInfo struct {
	URL           string   `json:"url"`
	VideoID       string   `json:"videoId,omitempty"`
	Title         string   `json:"title,omitempty"`
	LengthSeconds float64  `json:"lengthSeconds,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	CurrentTime   *float64 `json:"currentTime,omitempty"`
}

// Resolver builds share payloads from page data, enriched by oEmbed.
type Resolver struct {
	client    *http.Client
	oembedURL string
	logger    logrus.FieldLogger
}

func NewResolver(client *http.Client, oembedURL string, logger logrus.FieldLogger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if oembedURL == "" {
		oembedURL = DefaultOEmbedURL
	}
	return &Resolver{client: client, oembedURL: oembedURL, logger: logger}
}

type oembed struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (r *Resolver) fetchOEmbed(ctx context.Context, videoID string) (*oembed, error) {
	query := url.Values{}
	query.Set("url", CanonicalURL(videoID))
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.oembedURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oembed responded with %d", resp.StatusCode)
	}

	data := &oembed{}
	if err = json.NewDecoder(resp.Body).Decode(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Resolve returns the share payload for the page video. ok is false when the
// page URL holds no video id. Metadata lookups degrade to defaults.
func (r *Resolver) Resolve(ctx context.Context, page PageInfo, includeTimestamp bool) (*models.Video, bool) {
	videoID, ok := ParseVideoID(page.URL)
	if !ok {
		return nil, false
	}

	v := &models.Video{
		Type:      models.VideoRegular,
		Title:     DefaultTitle,
		Thumbnail: ThumbnailURL(videoID),
		URL:       CanonicalURL(videoID),
	}
	if strings.Contains(page.URL, "/shorts/") {
		v.Type = models.VideoShort
	}

	if page.VideoID == "" || page.VideoID == videoID {
		if page.Title != "" {
			v.Title = page.Title
		}
		if page.LengthSeconds > 0 {
			v.Duration = FormatDuration(page.LengthSeconds)
		}
		if page.Thumbnail != "" {
			v.Thumbnail = page.Thumbnail
		}
	}

	data, err := r.fetchOEmbed(ctx, videoID)
	if err != nil {
		r.logger.WithError(err).WithField("video_id", videoID).Debug("oembed lookup failed")
	} else {
		if data.Title != "" {
			v.Title = data.Title
		}
		if data.ThumbnailURL != "" {
			v.Thumbnail = data.ThumbnailURL
		}
	}

	if includeTimestamp && page.CurrentTime != nil {
		offset := int(math.Round(*page.CurrentTime))
		if offset > 0 {
			v.Timestamp = &offset
		}
	}
	return v, true
}
