package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/store"
)

func init() {
	logutil.SetOutput(io.Discard)
}

func testConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "crosspost.db")
	cfgPath = filepath.Join(dir, "crosspost.yml")
	body := "database:\n  driver: sqlite3\n  dsn: " + dbPath + "\nserver:\n  public_url: https://blog.example.com\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CROSSPOST_DATABASE_URL", "")
	t.Setenv("CROSSPOST_DB_DRIVER", "")
	t.Setenv("CROSSPOST_ADMIN_TOKEN", "")
	return cfgPath, dbPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSettingsSet(t *testing.T) {
	cfgPath, _ := testConfig(t)

	out, err := run(t, "app-pass\n", "--config", cfgPath, "settings", "set", "--profile-id", "alice.bsky.social", "--disable-scheduled-posting")
	if err != nil {
		t.Fatalf("settings set error = %v", err)
	}
	if strings.Contains(out, "app-pass") {
		t.Errorf("output leaks password: %s", out)
	}
	if !strings.Contains(out, "https://blog.example.com/cron") {
		t.Errorf("output missing cron url: %s", out)
	}

	// blank password keeps the stored one
	if _, err := run(t, "\n", "--config", cfgPath, "settings", "set", "--disable-scheduled-posting=false"); err != nil {
		t.Fatalf("settings set error = %v", err)
	}

	out, err = run(t, "", "--config", cfgPath, "settings")
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	for _, want := range []string{"alice.bsky.social", "********", "disable scheduled posting: false"} {
		if !strings.Contains(out, want) {
			t.Errorf("settings output missing %q:\n%s", want, out)
		}
	}
}

func TestPostDryRun(t *testing.T) {
	cfgPath, dbPath := testConfig(t)

	st, err := store.Open(context.Background(), store.DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = st.UpsertPost(context.Background(), crosspost.Post{
		ID:               12,
		Excerpt:          "Hello",
		Tags:             []string{"a", "b"},
		FeaturedImageURL: "https://example.com/a.png",
		Status:           crosspost.StatusPublish,
	})
	st.Close()
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	out, err := run(t, "", "--config", cfgPath, "post", "12", "--dry-run")
	if err != nil {
		t.Fatalf("post --dry-run error = %v", err)
	}
	for _, want := range []string{`"Hello\n\na, b"`, "image: https://example.com/a.png", "credentials are not configured"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out)
		}
	}
}

func TestPostRejectsBadID(t *testing.T) {
	if _, err := run(t, "", "post", "abc"); err == nil {
		t.Fatal("post abc succeeded, want error")
	}
}
