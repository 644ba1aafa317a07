package web

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kkdai/youtube/v2"

	"github.com/fernandomxwell/youtube-downloader/config"
	"github.com/fernandomxwell/youtube-downloader/media"
	"github.com/fernandomxwell/youtube-downloader/store"
)

// stubRunner stands in for ffmpeg/ffprobe. Run fabricates its output file;
// Output returns canned PCM for the decode call.
type stubRunner struct {
	decodeOut []byte
}

func (r stubRunner) Run(ctx context.Context, name string, args ...string) error {
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("fake media"), 0o644)
}

func (r stubRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.decodeOut, nil
}

// failingRunner simulates a tool invocation that exits non-zero.
type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, name string, args ...string) error {
	return errors.New("exit status 1")
}

func (failingRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, errors.New("exit status 1")
}

// fakeStreams serves canned video metadata and writes stub stream files.
type fakeStreams struct{}

func (fakeStreams) VideoInfo(ctx context.Context, url string) (*youtube.Video, error) {
	return &youtube.Video{ID: "abc", Title: "Test Video"}, nil
}

func (fakeStreams) DownloadFormat(ctx context.Context, video *youtube.Video, itag int, dst string) error {
	return os.WriteFile(dst, []byte("stream bytes"), 0o644)
}

func newTestServer(t *testing.T, runner media.Runner) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "downloads.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{
		StorageDir: dir,
		MaxWorkers: 2,
	}
	tools := media.Tools{Runner: runner, FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
	return New(cfg, tools, fakeStreams{}, st)
}

// pcmClickTrack encodes a 120 BPM click track as little-endian f32 PCM, the
// format the decoder reads off ffmpeg's stdout.
func pcmClickTrack(sr int, seconds int) []byte {
	n := sr * seconds
	period := sr / 2 // 120 BPM
	pulse := sr / 100

	buf := make([]byte, n*4)
	for start := 0; start < n; start += period {
		for i := 0; i < pulse && start+i < n; i++ {
			binary.LittleEndian.PutUint32(buf[(start+i)*4:], math.Float32bits(1.0))
		}
	}
	return buf
}

func multipartBody(t *testing.T, files map[string][]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, names := range files {
		for _, name := range names {
			fw, err := w.CreateFormFile(field, name)
			if err != nil {
				t.Fatal(err)
			}
			fw.Write([]byte("file contents"))
		}
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func TestAnalyzeBPMMissingFile(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	body, contentType := multipartBody(t, nil, map[string]string{"other": "x"})

	req := httptest.NewRequest(http.MethodPost, "/api/bpm-detector/analyze-bpm", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeBPMClickTrack(t *testing.T) {
	s := newTestServer(t, stubRunner{decodeOut: pcmClickTrack(44100, 10)})
	body, contentType := multipartBody(t, map[string][]string{"audiofile": {"song.mp3"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bpm-detector/analyze-bpm", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		BPM int `json:"bpm"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body %q: %v", rec.Body.String(), err)
	}
	if resp.BPM < 119 || resp.BPM > 121 {
		t.Errorf("bpm = %d, want ~120", resp.BPM)
	}

	// The job dir must be gone once the response is written.
	assertNoJobDirs(t, s)
}

func TestAnalyzeBPMSilenceReportsZero(t *testing.T) {
	s := newTestServer(t, stubRunner{decodeOut: make([]byte, 44100*4)})
	body, contentType := multipartBody(t, map[string][]string{"audiofile": {"quiet.mp3"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bpm-detector/analyze-bpm", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"bpm":0`) {
		t.Errorf("body = %s, want bpm 0", rec.Body.String())
	}
}

func TestVideoInfoValidation(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	for _, payload := range []string{`{}`, `{"url":"not a url"}`, `garbage`} {
		req := httptest.NewRequest(http.MethodPost, "/api/youtube-downloader/video-info", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("payload %q: status = %d, want 422", payload, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":false`) {
			t.Errorf("payload %q: missing failure envelope: %s", payload, rec.Body.String())
		}
	}
}

func TestPrepareDownloadValidation(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	payloads := []string{
		`{}`,
		`{"url":"https://www.youtube.com/watch?v=abc","audioItag":140,"type":"flac"}`,
		`{"url":"https://www.youtube.com/watch?v=abc","audioItag":140,"type":"mp4"}`, // mp4 without videoItag
	}
	for _, payload := range payloads {
		req := httptest.NewRequest(http.MethodPost, "/api/youtube-downloader/prepare-download", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("payload %q: status = %d, want 422", payload, rec.Code)
		}
	}
}

func TestPrepareDownloadMP3(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	payload := `{"url":"https://www.youtube.com/watch?v=abc","audioItag":140,"type":"mp3"}`

	req := httptest.NewRequest(http.MethodPost, "/api/youtube-downloader/prepare-download", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			DownloadURL string `json:"downloadUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body %q: %v", rec.Body.String(), err)
	}
	token := path.Base(resp.Data.DownloadURL)

	d, err := s.store.Get(token)
	if err != nil {
		t.Fatalf("prepared download not registered: %v", err)
	}
	if d.Filename != "Test Video.mp3" {
		t.Errorf("filename = %q", d.Filename)
	}
	if _, err := os.Stat(d.Path); err != nil {
		t.Errorf("prepared file missing: %v", err)
	}
	assertNoJobDirs(t, s)
}

func TestPrepareDownloadFailureLeavesNoFiles(t *testing.T) {
	s := newTestServer(t, failingRunner{})
	payload := `{"url":"https://www.youtube.com/watch?v=abc","audioItag":140,"type":"mp3"}`

	req := httptest.NewRequest(http.MethodPost, "/api/youtube-downloader/prepare-download", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// A failed transcode must not strand a file in the prepared area;
	// the purge sweep only knows about registered rows.
	entries, err := os.ReadDir(s.preparedDir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("orphaned prepared file %s", e.Name())
	}
	assertNoJobDirs(t, s)
}

func TestPrepareDownloadRegistrationFailureRemovesFile(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	s.store.Close() // make the registry insert fail after assembly
	payload := `{"url":"https://www.youtube.com/watch?v=abc","audioItag":140,"type":"mp3"}`

	req := httptest.NewRequest(http.MethodPost, "/api/youtube-downloader/prepare-download", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	entries, err := os.ReadDir(s.preparedDir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("unregistered prepared file %s left behind", e.Name())
	}
}

func TestGetFileStreamsOnceThenGone(t *testing.T) {
	s := newTestServer(t, stubRunner{})

	path := filepath.Join(t.TempDir(), "prepared.mp4")
	if err := os.WriteFile(path, []byte("media bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := s.store.Put(store.PreparedDownload{
		Token: "tok", Filename: "My Video.mp4", Path: path,
		Title: "My Video", MediaType: "mp4", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/youtube-downloader/get-file/tok", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "media bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "My Video.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("prepared file not deleted after transfer")
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/youtube-downloader/get-file/tok", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second fetch: status = %d, want 404", rec.Code)
	}
}

func TestGetFileUnknownToken(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/youtube-downloader/get-file/nothing", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateVideoValidation(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	cases := []struct {
		name   string
		files  map[string][]string
		fields map[string]string
	}{
		{"no images", map[string][]string{"audio": {"a.mp3"}},
			map[string]string{"lyrics": "[]", "duration": "30"}},
		{"no audio", map[string][]string{"images": {"a.png"}},
			map[string]string{"lyrics": "[]", "duration": "30"}},
		{"bad lyrics", map[string][]string{"images": {"a.png"}, "audio": {"a.mp3"}},
			map[string]string{"lyrics": "not json", "duration": "30"}},
		{"bad duration", map[string][]string{"images": {"a.png"}, "audio": {"a.mp3"}},
			map[string]string{"lyrics": "[]", "duration": "-1"}},
	}
	for _, tc := range cases {
		body, contentType := multipartBody(t, tc.files, tc.fields)
		req := httptest.NewRequest(http.MethodPost, "/api/karaoke-maker/generate-video", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestGenerateVideoHappyPath(t *testing.T) {
	s := newTestServer(t, stubRunner{})
	lyrics := `[{"text":"hello","startTime":0,"endTime":2},{"text":"world","startTime":2,"endTime":4}]`
	body, contentType := multipartBody(t,
		map[string][]string{"images": {"a.png", "b.png"}, "audio": {"song.mp3"}},
		map[string]string{"lyrics": lyrics, "duration": "20"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/karaoke-maker/generate-video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "karaoke.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	assertNoJobDirs(t, s)
}

func TestGenerateVideoFailureCleansUp(t *testing.T) {
	s := newTestServer(t, failingRunner{})
	body, contentType := multipartBody(t,
		map[string][]string{"images": {"a.png"}, "audio": {"song.mp3"}},
		map[string]string{"lyrics": "[]", "duration": "10"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/karaoke-maker/generate-video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "failed to generate karaoke video") {
		t.Errorf("body = %q", rec.Body.String())
	}
	assertNoJobDirs(t, s)
}

func TestGenerateVideoProbesDurationWhenOmitted(t *testing.T) {
	// Without a duration field the handler reads the length off the
	// uploaded audio instead.
	s := newTestServer(t, stubRunner{decodeOut: []byte("20.0\n")})
	body, contentType := multipartBody(t,
		map[string][]string{"images": {"a.png"}, "audio": {"song.mp3"}},
		map[string]string{"lyrics": "[]"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/karaoke-maker/generate-video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	assertNoJobDirs(t, s)
}

func TestGenerateVideoProbeFailure(t *testing.T) {
	s := newTestServer(t, failingRunner{})
	body, contentType := multipartBody(t,
		map[string][]string{"images": {"a.png"}, "audio": {"song.mp3"}},
		map[string]string{"lyrics": "[]"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/karaoke-maker/generate-video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	assertNoJobDirs(t, s)
}

func assertNoJobDirs(t *testing.T, s *Server) {
	t.Helper()
	entries, err := os.ReadDir(s.uploadsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "job-") {
			t.Errorf("leftover job dir %s", e.Name())
		}
	}
}
