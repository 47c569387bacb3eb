package linkeeper

import (
	"net/url"
	"strings"

	"github.com/linkeeper/linkeeper/models"
)

// Classification is the result of matching a URL against the known
// platforms. A zero Classification means the URL was not recognized.
type Classification struct {
	Source       models.Source
	DetectedType string // e.g. "video", "post", "reel"
	ResourceID   string // platform resource id, when extractable
}

// Classify inspects a URL string and reports which known platform it belongs
// to. Matching is purely local host/path inspection; malformed URLs are
// reported as unrecognized, never as an error.
func Classify(rawURL string) Classification {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Classification{}
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if id := youtubeVideoID(u); id != "" {
			return Classification{Source: models.SourceYouTube, DetectedType: "video", ResourceID: id}
		}
		return Classification{Source: models.SourceYouTube}

	case host == "facebook.com" || host == "fb.watch":
		c := Classification{Source: models.SourceFacebook}
		if strings.Contains(u.Path, "/videos/") || host == "fb.watch" || strings.Contains(u.Path, "/watch") {
			c.DetectedType = "video"
		} else if strings.Contains(u.Path, "/reel") {
			c.DetectedType = "reel"
		} else if strings.Contains(u.Path, "/posts/") || strings.Contains(u.Path, "/photo") {
			c.DetectedType = "post"
		}
		return c

	case host == "instagram.com":
		c := Classification{Source: models.SourceInstagram}
		switch {
		case strings.HasPrefix(u.Path, "/p/"):
			c.DetectedType = "post"
			c.ResourceID = pathSegment(u.Path, 1)
		case strings.HasPrefix(u.Path, "/reel/") || strings.HasPrefix(u.Path, "/reels/"):
			c.DetectedType = "reel"
			c.ResourceID = pathSegment(u.Path, 1)
		case strings.HasPrefix(u.Path, "/tv/"):
			c.DetectedType = "video"
			c.ResourceID = pathSegment(u.Path, 1)
		}
		return c

	case host == "threads.net" || host == "threads.com":
		c := Classification{Source: models.SourceThreads}
		if strings.Contains(u.Path, "/post/") {
			c.DetectedType = "post"
		}
		return c
	}

	return Classification{}
}

// youtubeVideoID extracts the video id from the YouTube URL shapes we save:
// youtu.be/{id}, /watch?v={id}, /shorts/{id} and /embed/{id}.
func youtubeVideoID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if host == "youtu.be" {
		return pathSegment(u.Path, 0)
	}

	switch {
	case u.Path == "/watch":
		return u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/shorts/"):
		return pathSegment(u.Path, 1)
	case strings.HasPrefix(u.Path, "/embed/"):
		return pathSegment(u.Path, 1)
	}
	return ""
}

// pathSegment returns the nth non-empty segment of a URL path, or "".
func pathSegment(path string, n int) string {
	segs := []string{}
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if n < 0 || n >= len(segs) {
		return ""
	}
	return segs[n]
}
