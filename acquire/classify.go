package acquire

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Kind is the acquisition strategy for an input.
type Kind string

const (
	KindUpload      Kind = "upload"
	KindDirectURL   Kind = "direct-url"
	KindPlatformURL Kind = "platform-url"
	// KindLocal is a file already on this host, picked up from the inbox.
	KindLocal Kind = "local"
)

var platformHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// videoPathPrefixes are the long-form paths that carry a video id as their
// next segment.
var videoPathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// Classify validates rawURL and picks the strategy for it. Platform hosts
// are matched exactly, so look-alike domains are fetched directly.
func Classify(rawURL string) (Kind, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &Error{Reason: ReasonInvalidURL, Message: "parse audio URL", Err: ErrInvalidURL}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &Error{Reason: ReasonInvalidURL, Message: "audio URL must use http or https", Err: ErrInvalidURL}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", &Error{Reason: ReasonInvalidURL, Message: "audio URL has no host", Err: ErrInvalidURL}
	}
	if !platformHosts[host] {
		return KindDirectURL, nil
	}
	if !playable(host, u) {
		return "", &Error{Reason: ReasonInvalidURL, Message: rawURL, Err: ErrNotPlayable}
	}
	return KindPlatformURL, nil
}

func playable(host string, u *url.URL) bool {
	if strings.HasSuffix(host, "youtu.be") {
		return firstSegment(u.Path) != ""
	}
	if strings.TrimSuffix(u.Path, "/") == "/watch" {
		return strings.TrimSpace(u.Query().Get("v")) != ""
	}
	for _, prefix := range videoPathPrefixes {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			return firstSegment(rest) != ""
		}
	}
	return false
}

func firstSegment(p string) string {
	p = strings.TrimLeft(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return strings.TrimSpace(p)
}

// ExtFor guesses the artifact extension for an input.
func ExtFor(in Input) string {
	switch in.Kind {
	case KindPlatformURL:
		return ".mp3"
	case KindDirectURL:
		if u, err := url.Parse(in.URL); err == nil {
			return path.Ext(u.Path)
		}
		return ""
	case KindLocal:
		return filepath.Ext(in.Path)
	default:
		return path.Ext(in.Name)
	}
}
