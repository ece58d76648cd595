package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/photofactory/internal/config"
	"github.com/mesh-intelligence/photofactory/internal/jobnumber"
	"github.com/mesh-intelligence/photofactory/internal/paths"
	"github.com/mesh-intelligence/photofactory/pkg/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	t         *testing.T
	configDir string
	dataDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(paths.EnvConfigDir, "")
	t.Setenv(paths.EnvDataDir, "")
	root := t.TempDir()
	return &testEnv{
		t:         t,
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

// run executes photofactory with the environment's directories and returns
// stdout, stderr and the exit code.
func (e *testEnv) run(args ...string) (string, string, int) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir, "--log-level", "error"}, args...)
	code := run(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// mustRun fails the test unless the command exits 0.
func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, code := e.run(args...)
	require.Equal(e.t, exitSuccess, code, "photofactory %v\nstdout: %s\nstderr: %s", args, out, errOut)
	return out
}

// runJSON runs with --json and decodes stdout into v.
func (e *testEnv) runJSON(v any, args ...string) {
	e.t.Helper()
	out := e.mustRun(append([]string{"--json"}, args...)...)
	require.NoError(e.t, json.Unmarshal([]byte(out), v), out)
}

func (e *testEnv) writeConfig(body string) {
	e.t.Helper()
	require.NoError(e.t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(e.t, os.WriteFile(filepath.Join(e.configDir, config.FileName), []byte(body), 0o644))
}

// writePNG writes a w×h PNG and returns its path.
func (e *testEnv) writePNG(name string, w, h int) string {
	e.t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(e.t, png.Encode(&buf, img))
	path := filepath.Join(e.t.TempDir(), name)
	require.NoError(e.t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func (e *testEnv) login() {
	e.t.Helper()
	e.mustRun("login", "--email", "tech@example.com", "--name", "Tech One")
}

func TestVersion(t *testing.T) {
	e := newTestEnv(t)
	out := e.mustRun("version")
	assert.Contains(t, out, "photofactory "+version)
	assert.Contains(t, out, modulePath)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"bogus"}},
		{"unknown flag", []string{"jobs", "list", "--bogus"}},
		{"missing argument", []string{"session", "add", "before_car"}},
		{"extra argument", []string{"whoami", "me"}},
		{"bad duration", []string{"db", "sweep", "--max-age", "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			_, errOut, code := e.run(tt.args...)
			assert.Equal(t, exitUserError, code)
			assert.Contains(t, errOut, "error:")
		})
	}
}

func TestInit(t *testing.T) {
	e := newTestEnv(t)
	out := e.mustRun("init")
	assert.Contains(t, out, e.configDir)
	assert.Contains(t, out, e.dataDir)

	_, err := os.Stat(filepath.Join(e.configDir, config.FileName))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.dataDir, sqlite.DatabaseFileName))
	require.NoError(t, err)

	var dirs map[string]string
	e.runJSON(&dirs, "init")
	assert.Equal(t, e.dataDir, dirs["data_dir"])
}

func TestInvalidConfigIsSystemError(t *testing.T) {
	e := newTestEnv(t)
	e.writeConfig("upload:\n  backend: s3\n")
	_, errOut, code := e.run("init")
	assert.Equal(t, exitSysError, code)
	assert.Contains(t, errOut, "unknown upload backend")
}

func TestLoginWhoamiLogout(t *testing.T) {
	e := newTestEnv(t)

	_, errOut, code := e.run("whoami")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "Please sign in first.")

	_, errOut, code = e.run("login")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "--email")

	var user types.User
	e.runJSON(&user, "login", "--email", "Tech@Example.com", "--name", "Tech One")
	assert.Equal(t, "tech@example.com", user.Email)
	assert.Positive(t, user.UserID)

	out := e.mustRun("whoami")
	assert.Contains(t, out, "Tech One <tech@example.com>")

	var again types.User
	e.runJSON(&again, "login", "--email", "tech@example.com")
	assert.Equal(t, user.UserID, again.UserID, "signing in again reuses the account")

	e.mustRun("logout")
	_, _, code = e.run("whoami")
	assert.Equal(t, exitUserError, code)
}

func TestSessionToSavedJob(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	front := e.writePNG("front.png", 64, 48)
	rear := e.writePNG("rear.png", 32, 32)
	e.mustRun("session", "set", "--vehicle", "Genesis G80", "--location", "Bay 2")
	out := e.mustRun("session", "add", "before_car", front)
	assert.Contains(t, out, "Added front.png to")
	e.mustRun("session", "add", "before_car", rear)
	e.mustRun("session", "add", "after_wheel", front)

	var view sessionView
	e.runJSON(&view, "session", "show")
	assert.Equal(t, 3, view.PhotoCount)
	assert.Equal(t, 2, view.Staged[types.CategoryBeforeCar])
	assert.Equal(t, "Genesis G80", view.VehicleModel)
	assert.True(t, jobnumber.Valid(view.NextNumber), view.NextNumber)

	e.mustRun("session", "remove", "before_car", "1")
	e.runJSON(&view, "session", "show")
	require.Len(t, view.Photos[types.CategoryBeforeCar], 1)
	assert.Equal(t, "front.png", view.Photos[types.CategoryBeforeCar][0].FileName)

	var job types.Job
	e.runJSON(&job, "session", "save", "--date", "2025-01-16")
	assert.True(t, jobnumber.Valid(job.JobNumber), job.JobNumber)
	assert.Equal(t, "2025-01-16", job.WorkDate)
	assert.Equal(t, "Bay 2", job.Location)
	assert.Equal(t, types.StatusUploaded, job.Status)
	require.Len(t, job.Photos, 2)
	assert.NotEmpty(t, job.Photos[0].ImageData, "without an uploader the bytes stay in the store")

	e.runJSON(&view, "session", "show")
	assert.Zero(t, view.PhotoCount, "saving resets the session")
	assert.Empty(t, view.VehicleModel)

	var jobs []types.Job
	e.runJSON(&jobs, "jobs", "list")
	require.Len(t, jobs, 1)
	assert.Equal(t, job.JobNumber, jobs[0].JobNumber)

	out = e.mustRun("jobs", "show", job.JobNumber)
	assert.Contains(t, out, "Genesis G80")
	assert.Contains(t, out, "stored locally")

	var updated types.Job
	e.runJSON(&updated, "jobs", "update", job.JobNumber, "--status", "published")
	assert.Equal(t, types.StatusPublished, updated.Status)
	e.runJSON(&jobs, "jobs", "list", "--status", "uploaded")
	assert.Empty(t, jobs)

	var stats types.Stats
	e.runJSON(&stats, "db", "stats")
	assert.Equal(t, 1, stats.Jobs)
	assert.Equal(t, 2, stats.Photos)
	assert.Zero(t, stats.StagedPhotos)

	e.mustRun("jobs", "delete", job.JobNumber)
	e.runJSON(&stats, "db", "stats")
	assert.Zero(t, stats.Jobs)
	assert.Zero(t, stats.Photos)

	_, errOut, code := e.run("jobs", "show", job.JobNumber)
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "No job numbered")
}

func TestSessionErrors(t *testing.T) {
	e := newTestEnv(t)
	photo := e.writePNG("p.png", 8, 8)
	notImage := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("not a photo"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"save signed out", []string{"session", "save"}, "sign in"},
		{"unknown category", []string{"session", "add", "tyres", photo}, "Unknown photo category"},
		{"missing file", []string{"session", "add", "during", filepath.Join(t.TempDir(), "gone.jpg")}, "Cannot read"},
		{"not an image", []string{"session", "add", "during", notImage}, ""},
		{"bad index", []string{"session", "remove", "during", "x"}, "not a photo index"},
		{"index out of range", []string{"session", "remove", "during", "0"}, ""},
		{"nothing to set", []string{"session", "set"}, "Nothing to change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := e.run(tt.args...)
			assert.Equal(t, exitUserError, code, errOut)
			assert.Contains(t, errOut, tt.want)
		})
	}

	e.login()
	_, errOut, code := e.run("session", "save", "--vehicle", "G80")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "Add at least one photo")

	e.mustRun("session", "add", "during", photo)
	_, errOut, code = e.run("session", "save")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "Vehicle model is required")
}

func TestSessionPhotoLimit(t *testing.T) {
	e := newTestEnv(t)
	e.writeConfig("photos_per_category: 1\n")
	photo := e.writePNG("p.png", 8, 8)

	e.mustRun("session", "add", "during", photo)
	_, errOut, code := e.run("session", "add", "during", photo)
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "already has 1 photos")

	e.mustRun("session", "reset")
	e.mustRun("session", "add", "during", photo)
}

func TestSaveWithLocalUploads(t *testing.T) {
	e := newTestEnv(t)
	uploads := filepath.Join(t.TempDir(), "uploads")
	e.writeConfig("upload:\n  backend: local\n  local_dir: " + uploads + "\n")
	e.login()

	e.mustRun("session", "add", "after_car", e.writePNG("done.png", 40, 30))
	var job types.Job
	e.runJSON(&job, "session", "save", "--vehicle", "Sonata")
	require.Len(t, job.Photos, 1)

	p := job.Photos[0]
	assert.True(t, strings.HasPrefix(p.URL, "file://"), p.URL)
	assert.Empty(t, p.ImageData, "uploaded photos do not keep their bytes")
	_, err := os.Stat(filepath.Join(uploads, filepath.FromSlash(p.PublicID)))
	require.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	src := newTestEnv(t)
	src.login()
	src.mustRun("session", "add", "during", src.writePNG("p.png", 16, 16))
	src.mustRun("session", "save", "--vehicle", "K5")

	snapshot := filepath.Join(t.TempDir(), "export.json")
	src.mustRun("db", "export", snapshot)
	jsonlDir := filepath.Join(t.TempDir(), "jsonl")
	src.mustRun("db", "export", "--jsonl", jsonlDir)

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"snapshot", []string{"db", "import", snapshot}},
		{"jsonl", []string{"db", "import", "--jsonl", jsonlDir}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dst := newTestEnv(t)
			var stats types.Stats
			dst.runJSON(&stats, tc.args...)
			assert.Equal(t, 1, stats.Jobs)
			assert.Equal(t, 1, stats.Photos)
			assert.Equal(t, 1, stats.Users)
		})
	}

	t.Run("invalid file", func(t *testing.T) {
		dst := newTestEnv(t)
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"version": 1, "jobs": "nope"}`), 0o644))
		_, errOut, code := dst.run("db", "import", bad)
		assert.Equal(t, exitUserError, code)
		assert.Contains(t, errOut, "not a valid photofactory export")
	})

	t.Run("missing jsonl dir", func(t *testing.T) {
		dst := newTestEnv(t)
		_, _, code := dst.run("db", "import", "--jsonl", filepath.Join(t.TempDir(), "none"))
		assert.Equal(t, exitUserError, code)
	})
}

func TestDBSweepAndClear(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("session", "add", "during", e.writePNG("p.png", 8, 8))

	var swept map[string]int
	e.runJSON(&swept, "db", "sweep")
	assert.Zero(t, swept["removed"], "the live session's photo is recent")

	_, errOut, code := e.run("db", "clear")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "--yes")

	e.mustRun("db", "clear", "--yes")
	var stats types.Stats
	e.runJSON(&stats, "db", "stats")
	assert.Zero(t, stats.StagedPhotos)
}
