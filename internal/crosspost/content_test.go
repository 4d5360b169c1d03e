package crosspost

import (
	"strings"
	"testing"
)

func TestBuildContent(t *testing.T) {
	tests := []struct {
		name string
		post Post
		want string
	}{
		{
			name: "excerpt and tags",
			post: Post{Excerpt: "Hello", Tags: []string{"a", "b"}},
			want: "Hello\n\na, b",
		},
		{
			name: "no tags",
			post: Post{Excerpt: "Hello"},
			want: "Hello",
		},
		{
			name: "blank tags dropped",
			post: Post{Excerpt: "Hello", Tags: []string{" ", "go"}},
			want: "Hello\n\ngo",
		},
		{
			name: "content fallback strips markup",
			post: Post{Content: "<p>Hello <strong>world</strong> &amp; friends</p>[gallery ids=\"1\"]", Tags: []string{"news"}},
			want: "Hello world & friends\n\nnews",
		},
		{
			name: "excerpt wins over content",
			post: Post{Excerpt: "  Short  ", Content: "Long body"},
			want: "Short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildContent(tt.post); got != tt.want {
				t.Errorf("BuildContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrimExcerpt(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = "w"
	}

	got := TrimExcerpt(strings.Join(words, " "))
	if !strings.HasSuffix(got, excerptMore) {
		t.Fatalf("TrimExcerpt() = %q, want suffix %q", got, excerptMore)
	}
	if n := len(strings.Fields(strings.TrimSuffix(got, excerptMore))); n != excerptWords {
		t.Errorf("TrimExcerpt() kept %d words, want %d", n, excerptWords)
	}

	if got := TrimExcerpt("one two"); got != "one two" {
		t.Errorf("TrimExcerpt(short) = %q, want %q", got, "one two")
	}
}

func TestBuildRequest(t *testing.T) {
	post := Post{Excerpt: "Hi", FeaturedImageURL: " https://example.com/a.png "}
	cfg := Config{ProfileID: " alice.bsky.social ", AppPassword: "secret"}

	req := BuildRequest(post, cfg)
	if req.ImageURL != "https://example.com/a.png" {
		t.Errorf("ImageURL = %q", req.ImageURL)
	}
	if req.Credentials.ProfileID != "alice.bsky.social" || req.Credentials.AppPassword != "secret" {
		t.Errorf("Credentials = %+v", req.Credentials)
	}
	if req.Content != "Hi" {
		t.Errorf("Content = %q, want %q", req.Content, "Hi")
	}
}
