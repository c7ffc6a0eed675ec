package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/shoplist/internal/auth"
	"github.com/vyrodovalexey/shoplist/internal/config"
	"github.com/vyrodovalexey/shoplist/internal/model"
	"github.com/vyrodovalexey/shoplist/internal/server"
	"github.com/vyrodovalexey/shoplist/internal/store"
)

const testRecipes = `
[[recipe]]
id = "pancakes"
name = "Pancakes"
servings = 2
ingredients = ["200 g flour", "2 eggs"]
`

// setupBackend starts an API-key protected backend and points the CLI at it.
func setupBackend(t *testing.T) *httptest.Server {
	t.Helper()

	authenticator, err := auth.NewAPIKeyAuthenticator("secret-key:cli")
	if err != nil {
		t.Fatalf("NewAPIKeyAuthenticator() error = %v", err)
	}
	cfg := &config.Config{
		ServerPort:      8080,
		LogLevel:        "error",
		ShutdownTimeout: 5 * time.Second,
		StorageBackend:  config.StorageMemory,
		AuthMode:        "apikey",
	}
	srv := server.New(cfg, zap.NewNop(), store.NewMemoryStore(), authenticator)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	recipesPath := filepath.Join(t.TempDir(), "recipes.toml")
	if err := os.WriteFile(recipesPath, []byte(testRecipes), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("APP_LOG_LEVEL", "error")
	t.Setenv("APP_REMOTE_URL", ts.URL)
	t.Setenv("APP_REMOTE_API_KEY", "secret-key")
	t.Setenv("APP_CACHE_PATH", filepath.Join(t.TempDir(), "cache.db"))
	t.Setenv("APP_RECIPES_PATH", recipesPath)
	return ts
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("shoplist %v exited %d: %s", args, code, errOut)
	}
	return out
}

func TestRun_Version(t *testing.T) {
	// Act
	code, out, _ := runCLI(t, "-version")

	// Assert
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if strings.TrimSpace(out) != "shoplist "+Version {
		t.Errorf("output = %q", out)
	}
}

func TestRun_Usage(t *testing.T) {
	setupBackend(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"bogus"}},
		{name: "create without name", args: []string{"create"}},
		{name: "add without items", args: []string{"add", "some-list"}},
		{name: "add-recipe without target", args: []string{"add-recipe", "pancakes"}},
		{name: "add-recipe with both targets", args: []string{"add-recipe", "-list", "x", "-new", "y", "pancakes"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, tt.args...); code != 2 {
				t.Errorf("exit code = %d, want 2", code)
			}
		})
	}
}

func TestRun_Recipes(t *testing.T) {
	// Arrange
	setupBackend(t)

	// Act
	out := mustRun(t, "recipes")

	// Assert
	if !strings.Contains(out, "pancakes") || !strings.Contains(out, "200 g flour, 2 eggs") {
		t.Errorf("recipes output = %q", out)
	}
}

func TestRun_RecipesWithoutCatalog(t *testing.T) {
	setupBackend(t)
	t.Setenv("APP_RECIPES_PATH", "")

	if code, _, errOut := runCLI(t, "recipes"); code != 1 || !strings.Contains(errOut, "recipes_path") {
		t.Errorf("exit code = %d, stderr = %q", code, errOut)
	}
}

func TestRun_Workflow(t *testing.T) {
	setupBackend(t)

	// Create a list and add two items.
	dinner := strings.TrimSpace(mustRun(t, "create", "Dinner", "Friday"))
	if dinner == "" {
		t.Fatal("create printed no list id")
	}
	out := mustRun(t, "add", dinner, "pasta", "sauce")
	if !strings.Contains(out, dinner) || !strings.Contains(out, "Dinner") {
		t.Fatalf("add output = %q", out)
	}
	fields := strings.Fields(lineFor(t, out, dinner))
	if fields[len(fields)-2] != "2" {
		t.Errorf("item count column = %q, want 2 (row %v)", fields[len(fields)-2], fields)
	}

	// Scale a recipe into the existing list.
	out = mustRun(t, "add-recipe", "-list", dinner, "-servings", "4", "pancakes")
	fields = strings.Fields(lineFor(t, out, dinner))
	if fields[len(fields)-2] != "4" {
		t.Errorf("item count after recipe = %q, want 4", fields[len(fields)-2])
	}

	// Create a second list straight from a recipe.
	brunch := strings.TrimSpace(mustRun(t, "add-recipe", "-new", "Brunch", "pancakes"))
	if brunch == "" || brunch == dinner {
		t.Fatalf("add-recipe -new printed %q", brunch)
	}

	// Reorder and read the order back.
	out = mustRun(t, "reorder", brunch, dinner)
	rows := strings.Split(strings.TrimSpace(out), "\n")
	if len(rows) != 3 {
		t.Fatalf("reorder output rows = %d, want header and 2 lists: %q", len(rows), out)
	}
	if !strings.HasPrefix(rows[1], brunch) || !strings.HasPrefix(rows[2], dinner) {
		t.Errorf("order after reorder = %q", rows[1:])
	}

	// An incomplete permutation is rejected.
	if code, _, _ := runCLI(t, "reorder", dinner); code != 2 {
		t.Errorf("partial reorder exit code = %d, want 2", code)
	}

	// Delete, then deleting again fails.
	mustRun(t, "delete", dinner)
	out = mustRun(t, "lists")
	if strings.Contains(out, dinner) {
		t.Errorf("deleted list still listed: %q", out)
	}
	if !strings.Contains(out, brunch) {
		t.Errorf("remaining list missing: %q", out)
	}
	if code, _, errOut := runCLI(t, "delete", dinner); code != 1 || !strings.Contains(errOut, "unknown list") {
		t.Errorf("second delete exit code = %d, stderr = %q", code, errOut)
	}
}

func TestRun_WrongAPIKey(t *testing.T) {
	// Arrange
	setupBackend(t)
	t.Setenv("APP_REMOTE_API_KEY", "wrong")

	// Act
	code, _, errOut := runCLI(t, "create", "Dinner")

	// Assert
	if code != 1 {
		t.Errorf("exit code = %d, want 1 (stderr %q)", code, errOut)
	}
}

func TestRun_ListsFromCacheWhenOffline(t *testing.T) {
	// Arrange
	ts := setupBackend(t)
	id := strings.TrimSpace(mustRun(t, "create", "Weekly"))
	mustRun(t, "lists")
	ts.Close()

	// Act
	code, out, errOut := runCLI(t, "lists")

	// Assert
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Weekly") {
		t.Errorf("offline output = %q, want the cached list", out)
	}
	if !strings.Contains(errOut, "cached") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRun_ClearCache(t *testing.T) {
	// Arrange
	ts := setupBackend(t)
	id := strings.TrimSpace(mustRun(t, "create", "Weekly"))
	mustRun(t, "lists")

	// Act
	cleared := mustRun(t, "clear-cache")
	ts.Close()
	code, out, _ := runCLI(t, "lists")

	// Assert
	if !strings.Contains(cleared, "1 lists") {
		t.Errorf("clear-cache output = %q", cleared)
	}
	if code != 1 || strings.Contains(out, id) {
		t.Errorf("offline lists after clear-cache: code = %d, output = %q", code, out)
	}
}

func TestApp_FollowLogsFeedErrors(t *testing.T) {
	tests := []struct {
		name    string
		feed    func(cancel context.CancelFunc) error
		wantLog bool
	}{
		{
			name:    "feed failure",
			feed:    func(context.CancelFunc) error { return errors.New("handshake refused") },
			wantLog: true,
		},
		{
			name: "cancelled",
			feed: func(cancel context.CancelFunc) error {
				cancel()
				return context.Canceled
			},
			wantLog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var buf bytes.Buffer
			core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.DebugLevel)
			a := &app{logger: zap.New(core)}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Act
			a.follow(ctx, func(context.Context, func(model.ListEvent)) error { return tt.feed(cancel) })

			// Assert
			if logged := strings.Contains(buf.String(), "change feed stopped"); logged != tt.wantLog {
				t.Errorf("logged = %v, want %v (log %q)", logged, tt.wantLog, buf.String())
			}
		})
	}
}

func lineFor(t *testing.T, out, id string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, id) {
			return line
		}
	}
	t.Fatalf("no row for %s in %q", id, out)
	return ""
}
