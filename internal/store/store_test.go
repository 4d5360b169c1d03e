package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
)

func init() {
	logutil.SetOutput(io.Discard)
}

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "crosspost.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Fatal("Open(mysql) succeeded, want error")
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", DriverSQLite, false},
		{"sqlite", DriverSQLite, false},
		{"sqlite3", DriverSQLite, false},
		{"postgres", DriverPostgres, false},
		{"postgresql", DriverPostgres, false},
		{"PostgreSQL", DriverPostgres, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDriver(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDriver(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDriver(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestOpenSQLiteAlias(t *testing.T) {
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "alias.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	s.Close()
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosspost.db")
	ctx := context.Background()

	s, err := Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SaveConfig(ctx, crosspost.Config{ProfileID: "alice"}); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	s.Close()

	s, err = Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	cfg, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ProfileID != "alice" {
		t.Errorf("ProfileID = %q, want alice", cfg.ProfileID)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig() on empty store error = %v", err)
	}
	if cfg != (crosspost.Config{}) {
		t.Errorf("empty store config = %+v", cfg)
	}

	want := crosspost.Config{ProfileID: "alice.bsky.social", AppPassword: "abcd-efgh", DisableScheduledPosting: true}
	if err := s.SaveConfig(ctx, want); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	want.DisableScheduledPosting = false
	if err := s.SaveConfig(ctx, want); err != nil {
		t.Fatalf("SaveConfig() overwrite error = %v", err)
	}

	got, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got != want {
		t.Errorf("LoadConfig() = %+v, want %+v", got, want)
	}
}

func TestPostRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	post := crosspost.Post{
		ID:               42,
		AuthorID:         "editor",
		Title:            "Title",
		Excerpt:          "Hello",
		Content:          "<p>Body</p>",
		Tags:             []string{"b", "a"},
		FeaturedImageURL: "https://example.com/a.png",
		Status:           crosspost.StatusPublish,
	}
	if err := s.UpsertPost(ctx, post); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}

	got, err := s.GetPost(ctx, 42)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if !reflect.DeepEqual(got, post) {
		t.Errorf("GetPost() = %+v, want %+v", got, post)
	}

	post.Tags = []string{"c"}
	if err := s.UpsertPost(ctx, post); err != nil {
		t.Fatalf("UpsertPost() update error = %v", err)
	}
	got, _ = s.GetPost(ctx, 42)
	if !reflect.DeepEqual(got.Tags, []string{"c"}) {
		t.Errorf("Tags = %v, want [c]", got.Tags)
	}

	if _, err := s.GetPost(ctx, 7); !errors.Is(err, crosspost.ErrPostNotFound) {
		t.Errorf("GetPost(missing) error = %v, want ErrPostNotFound", err)
	}
}

func TestSetCrosspostURLIsOneWay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPost(ctx, crosspost.Post{ID: 1, Status: crosspost.StatusPublish}); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}

	if err := s.SetCrosspostURL(ctx, 1, "https://bsky.example/x"); err != nil {
		t.Fatalf("SetCrosspostURL() error = %v", err)
	}
	if err := s.SetCrosspostURL(ctx, 1, "https://bsky.example/y"); !errors.Is(err, crosspost.ErrAlreadyPosted) {
		t.Errorf("second SetCrosspostURL() error = %v, want ErrAlreadyPosted", err)
	}
	if err := s.SetCrosspostURL(ctx, 2, "https://bsky.example/z"); !errors.Is(err, crosspost.ErrPostNotFound) {
		t.Errorf("SetCrosspostURL(missing) error = %v, want ErrPostNotFound", err)
	}

	// a later save from the host must not clear the marker
	if err := s.UpsertPost(ctx, crosspost.Post{ID: 1, Status: crosspost.StatusPublish, Title: "edited"}); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}
	got, err := s.GetPost(ctx, 1)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if got.CrosspostURL != "https://bsky.example/x" {
		t.Errorf("CrosspostURL = %q, want https://bsky.example/x", got.CrosspostURL)
	}
}

func TestUpsertPostRejectsZeroID(t *testing.T) {
	s := openTestStore(t)
	var verr crosspost.ValidationError
	if err := s.UpsertPost(context.Background(), crosspost.Post{}); !errors.As(err, &verr) {
		t.Errorf("UpsertPost(zero id) error = %v, want ValidationError", err)
	}
}

func TestRebind(t *testing.T) {
	r := &sqlRepo{driver: DriverPostgres}
	got := r.rebind("UPDATE posts SET a = ?, b = ? WHERE id = ?")
	want := "UPDATE posts SET a = $1, b = $2 WHERE id = $3"
	if got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}

	r.driver = DriverSQLite
	if got := r.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind() = %q", got)
	}
}
