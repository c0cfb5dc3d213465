package analysis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnsupportedMedia is returned for content the analyzers cannot handle.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL.
func ParseDataURL(url string) (string, []byte, error) {
	// Format: data:image/jpeg;base64,/9j/4AAQSkZ...
	content, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}

	metadata, payload, ok := strings.Cut(content, ",")
	if !ok {
		return "", nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	parts := strings.Split(metadata, ";")
	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	if mediaType == "" {
		return "", nil, fmt.Errorf("invalid data URL: missing media type")
	}

	isBase64 := false
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
			break
		}
	}
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL must be base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URL payload: %w", err)
	}
	return mediaType, data, nil
}

// Sniff checks that data looks like the declared media type. Browsers
// sometimes send a generic type, so the detected type wins when the
// declared one is application/octet-stream or empty.
func Sniff(declared string, data []byte) (string, error) {
	detected := http.DetectContentType(data)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	declared = normalizeMediaType(declared)

	switch {
	case declared == "" || declared == "application/octet-stream":
		if !supported(detected) {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, detected)
		}
		return detected, nil
	case !supported(declared):
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, declared)
	case detected != declared:
		return "", fmt.Errorf("%w: declared %s but content is %s", ErrUnsupportedMedia, declared, detected)
	}
	return declared, nil
}

func normalizeMediaType(mediaType string) string {
	mt := strings.TrimSpace(strings.ToLower(strings.Split(mediaType, ";")[0]))
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}

func supported(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/png", "image/webp", "application/pdf":
		return true
	}
	return false
}

// inferMediaType guesses a media type from a URL path.
func inferMediaType(url string) string {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}

	switch {
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	default:
		return ""
	}
}
