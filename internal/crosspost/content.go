package crosspost

import (
	"html"
	"regexp"
	"strings"
)

const (
	excerptWords = 55
	excerptMore  = "…"
	tagSeparator = ", "
)

var (
	htmlTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	shortcodePattern = regexp.MustCompile(`\[/?[A-Za-z][^\]]*\]`)
)

// BuildContent renders the text body of a cross-post: the excerpt (or a
// trimmed content fallback) followed by a blank line and the tag list.
func BuildContent(post Post) string {
	body := strings.TrimSpace(post.Excerpt)
	if body == "" {
		body = TrimExcerpt(post.Content)
	}

	tags := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return body
	}
	return body + "\n\n" + strings.Join(tags, tagSeparator)
}

// TrimExcerpt strips markup from content and keeps the first 55 words.
func TrimExcerpt(content string) string {
	text := shortcodePattern.ReplaceAllString(content, "")
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	words := strings.Fields(text)
	if len(words) <= excerptWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:excerptWords], " ") + excerptMore
}

// BuildRequest assembles the outbound request for post with cfg's credentials.
func BuildRequest(post Post, cfg Config) Request {
	return Request{
		Content:     BuildContent(post),
		ImageURL:    strings.TrimSpace(post.FeaturedImageURL),
		Credentials: cfg.Credentials(),
	}
}
