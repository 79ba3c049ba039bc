package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/manash/modelchat/internal/backend/openai"
	"github.com/manash/modelchat/internal/config"
	"github.com/manash/modelchat/internal/keys"
	"github.com/manash/modelchat/pkg/models"
)

func resetFlags() {
	flagConfig = ""
	flagLogLevel = ""
	flagAPIKey = ""
	flagInline = ""
	flagAddr = ""
	flagOutputDir = ""
	flagStopOnError = false
}

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

// newTestApp returns an App with no API key, a private metrics registry and
// a key store under a temp dir.
func newTestApp(t *testing.T, in string, env map[string]string) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	resetFlags()

	base := map[string]string{
		"MODELCHAT_LOG_LEVEL":      "error",
		"MODELCHAT_DISPLAY_INLINE": "never",
		"MODELCHAT_DATASET_DIR":    t.TempDir(),
	}
	for k, v := range env {
		base[k] = v
	}

	keyDir := t.TempDir()
	reg := prometheus.NewRegistry()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	return &App{
		In:         strings.NewReader(in),
		Out:        out,
		Err:        errOut,
		GetEnv:     envMap(base),
		Registry:   models.DefaultRegistry(),
		TermFd:     -1,
		Registerer: reg,
		Gatherer:   reg,
		NewOpenAI:  openai.New,
		NewKeyStore: func(func(string) string) (*keys.Store, error) {
			return keys.NewStoreAt(keyDir), nil
		},
	}, out, errOut
}

func execute(app *App, args ...string) error {
	cmd := newRootCmd(app)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(map[string]any{
		"created": 1,
		"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(buf.Bytes())}},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultApp(t *testing.T) {
	app := DefaultApp()

	if app.In == nil || app.Out == nil || app.Err == nil {
		t.Error("DefaultApp() has nil streams")
	}
	if app.GetEnv == nil || app.NewOpenAI == nil || app.NewKeyStore == nil {
		t.Error("DefaultApp() has nil factories")
	}
	if app.Registry == nil {
		t.Error("DefaultApp() Registry is nil")
	}
	if app.Registerer == nil || app.Gatherer == nil {
		t.Error("DefaultApp() metrics registry is nil")
	}
}

func TestNewRootCmd(t *testing.T) {
	app, _, _ := newTestApp(t, "", nil)
	cmd := newRootCmd(app)

	if cmd.Use != "modelchat" {
		t.Errorf("Use = %s, want modelchat", cmd.Use)
	}
	for _, name := range []string{"config", "log-level", "api-key"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not found", name)
		}
	}

	subs := map[string]bool{}
	for _, c := range cmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"chat", "serve", "replay", "keys", "version"} {
		if !subs[name] {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	app, out, _ := newTestApp(t, "", nil)
	if err := execute(app, "version"); err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out.String(), "modelchat dev (commit: none)") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestChat_PlaceholderWithoutAPIKey(t *testing.T) {
	app, out, errOut := newTestApp(t, "robot dragon\nmake it red\nsubmit\nquit\n", nil)

	if err := execute(app, "chat"); err != nil {
		t.Fatalf("chat error = %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"Generated preview based on: robot dragon",
		"Preview: placeholder, 512x512, png",
		"Applied adjustment: make it red",
		"Status: success",
		"Tracking ID: HY",
		"Preview included: yes",
		"Goodbye!",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("chat output missing %q", want)
		}
	}
	if strings.Contains(errOut.String(), "Error:") {
		t.Errorf("unexpected errors: %q", errOut.String())
	}
}

func TestChat_OpenAI(t *testing.T) {
	srv := fakeOpenAI(t)
	app, out, _ := newTestApp(t, "alien tree\nadd fog\nquit\n", map[string]string{
		"MODELCHAT_OPENAI_BASE_URL":            srv.URL,
		"MODELCHAT_OPENAI_REQUESTS_PER_MINUTE": "0",
	})

	if err := execute(app, "chat", "--api-key", "sk-test"); err != nil {
		t.Fatalf("chat error = %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"Generated preview based on: alien tree",
		"Preview: openai, 4x4, png",
		"Cost: $0.0200",
		"Applied adjustment: add fog",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("chat output missing %q in %q", want, output)
		}
	}
}

func TestChat_OpenAIKeyFromEnv(t *testing.T) {
	srv := fakeOpenAI(t)
	app, out, _ := newTestApp(t, "alien tree\nquit\n", map[string]string{
		"MODELCHAT_OPENAI_BASE_URL":            srv.URL,
		"MODELCHAT_OPENAI_REQUESTS_PER_MINUTE": "0",
		"OPENAI_API_KEY":                       "sk-test",
	})

	if err := execute(app, "chat"); err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(out.String(), "Preview: openai") {
		t.Errorf("env key not used: %q", out.String())
	}
}

func TestChat_DatasetHit(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 3))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "castle.png"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "modelchat.yaml")
	yaml := "dataset:\n  dir: " + dir + "\n  entries:\n    castle: castle.png\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	app, out, _ := newTestApp(t, "castle\nquit\n", nil)
	// the dataset dir comes from the file, not the test env
	app.GetEnv = envMap(map[string]string{"MODELCHAT_LOG_LEVEL": "error", "MODELCHAT_DISPLAY_INLINE": "never"})

	if err := execute(app, "chat", "--config", cfgPath); err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(out.String(), "Preview: dataset, 2x3, png") {
		t.Errorf("dataset preview not used: %q", out.String())
	}
}

func TestChat_InvalidFlags(t *testing.T) {
	app, _, _ := newTestApp(t, "", nil)
	err := execute(app, "chat", "--inline", "sometimes")
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("chat --inline sometimes error = %v, want ErrInvalidConfig", err)
	}

	app, _, _ = newTestApp(t, "", nil)
	err = execute(app, "chat", "--log-level", "loud")
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("chat --log-level loud error = %v, want ErrInvalidConfig", err)
	}
}

func TestChat_UnknownOpenAIModel(t *testing.T) {
	app, _, _ := newTestApp(t, "", map[string]string{"MODELCHAT_OPENAI_MODEL": "dall-e-9"})
	err := execute(app, "chat", "--api-key", "sk-test")
	if err == nil || !strings.Contains(err.Error(), "failed to create OpenAI backend") {
		t.Errorf("chat error = %v, want OpenAI backend failure", err)
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	script := "# demo\nfuturistic tower\nrefine: add neon lights\nsubmit\n"
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()

	app, out, _ := newTestApp(t, "", nil)
	if err := execute(app, "replay", path, "--output-dir", outDir); err != nil {
		t.Fatalf("replay error = %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"[1/3] describe: \"futuristic tower\"",
		"Applied adjustment: add neon lights",
		"Steps: 3/3 succeeded",
		"Submitted: HY",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("replay output missing %q in %q", want, output)
		}
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("saved %d previews, want 2", len(entries))
	}
}

func TestReplay_BadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`[{"action":"teleport"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	app, _, _ := newTestApp(t, "", nil)
	if err := execute(app, "replay", path); err == nil {
		t.Error("replay accepted an unknown action")
	}
	if err := execute(app, "replay"); err == nil {
		t.Error("replay without a file should fail")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	app, _, _ := newTestApp(t, "", nil)
	cmd := newRootCmd(app)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Errorf("serve error = %v", err)
	}
}

func TestKeysCmd(t *testing.T) {
	app, out, _ := newTestApp(t, "", nil)

	if err := execute(app, "keys", "list"); err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(out.String(), "No stored keys") {
		t.Errorf("keys list output = %q", out.String())
	}

	out.Reset()
	if err := execute(app, "keys", "set", "openai", "sk-abcdefghijkl"); err != nil {
		t.Fatalf("keys set error = %v", err)
	}
	if !strings.Contains(out.String(), "Stored openai key sk-a*******ijkl") {
		t.Errorf("keys set output = %q", out.String())
	}

	out.Reset()
	if err := execute(app, "keys", "get", "openai"); err != nil {
		t.Fatalf("keys get error = %v", err)
	}
	if strings.Contains(out.String(), "sk-abcdefghijkl") {
		t.Error("keys get printed the raw key")
	}

	out.Reset()
	if err := execute(app, "keys", "list"); err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(out.String(), "openai: sk-a") {
		t.Errorf("keys list output = %q", out.String())
	}

	if err := execute(app, "keys", "delete", "openai"); err != nil {
		t.Fatalf("keys delete error = %v", err)
	}
	if err := execute(app, "keys", "get", "openai"); !errors.Is(err, keys.ErrKeyMissing) {
		t.Errorf("keys get after delete error = %v, want ErrKeyMissing", err)
	}
	if err := execute(app, "keys", "delete", "openai"); !errors.Is(err, keys.ErrKeyMissing) {
		t.Errorf("second delete error = %v, want ErrKeyMissing", err)
	}
}

func TestChat_StoredKey(t *testing.T) {
	srv := fakeOpenAI(t)
	app, out, _ := newTestApp(t, "alien tree\nquit\n", map[string]string{
		"MODELCHAT_OPENAI_BASE_URL":            srv.URL,
		"MODELCHAT_OPENAI_REQUESTS_PER_MINUTE": "0",
	})
	store, _ := app.NewKeyStore(nil)
	if err := store.Set("openai", "sk-test"); err != nil {
		t.Fatal(err)
	}

	if err := execute(app, "chat"); err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(out.String(), "Preview: openai") {
		t.Errorf("stored key not used: %q", out.String())
	}
}
