package utils

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"msgfetch/internal"
)

// knownMediaExtensions are extensions trusted when they appear in a media URL path
var knownMediaExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"m4a": true, "mp3": true, "wav": true,
	"mp4": true, "mov": true, "webm": true,
}

// defaultMediaExtensions maps raw API message types to a fallback extension
var defaultMediaExtensions = map[string]string{
	"image":   "jpg",
	"picture": "jpg",
	"voice":   "m4a",
	"movie":   "mp4",
	"video":   "mp4",
}

// UnknownExtension is used when neither the URL nor the message type tells the format
const UnknownExtension = "bin"

// ValidateURL checks that rawURL is an absolute http(s) URL
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return internal.NewValidationError("url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return internal.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return internal.NewValidationErrorWithValue("url", "URL must use http or https protocol", rawURL)
	}

	if parsedURL.Host == "" {
		return internal.NewValidationErrorWithValue("url", "URL must include a host", rawURL)
	}

	return nil
}

// MediaExtension picks a file extension for a media URL. The extension in the
// URL path wins when it is a known media format; otherwise the raw message type decides.
func MediaExtension(rawURL, rawType string) string {
	if rawURL != "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			ext := strings.ToLower(strings.TrimPrefix(path.Ext(parsed.Path), "."))
			if knownMediaExtensions[ext] {
				return ext
			}
		}
	}

	if ext, ok := defaultMediaExtensions[rawType]; ok {
		return ext
	}
	return UnknownExtension
}

// IsKnownMediaExtension reports whether ext (without dot) is a recognised media format
func IsKnownMediaExtension(ext string) bool {
	return knownMediaExtensions[strings.ToLower(ext)]
}

// SanitizeName makes a group or member name safe to use as a directory name
func SanitizeName(name string) string {
	return strings.TrimSpace(strings.NewReplacer(" ", "_", "/", "_").Replace(name))
}

// MediaSubdir is the directory a message's media is stored under
func MediaSubdir(t internal.MessageType) string {
	switch t {
	case internal.MessageTypePicture, internal.MessageTypeVideo, internal.MessageTypeVoice:
		return string(t)
	default:
		return "other"
	}
}

// ResolveEndpoint joins an API base URL with an endpoint path such as "/groups/1/members"
func ResolveEndpoint(baseURL, endpoint string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if rel.IsAbs() {
		return rel, nil
	}

	out := *base
	out.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	out.RawPath = ""
	out.RawQuery = rel.RawQuery
	return &out, nil
}
