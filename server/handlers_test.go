package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"echowall/config"
	"echowall/core/audio"
	"echowall/core/store"
	"echowall/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine 替代真实ffmpeg的Engine实现。
// 记录每次调用的参数，StartStream时顺手抓取清单内容，
// 因为任务结束后清单文件就被删了。
type fakeEngine struct {
	mu         sync.Mutex
	transcodes []audio.TransformSpec
	streams    []audio.TransformSpec
	manifests  []string

	transcodeFn func(spec audio.TransformSpec) error
}

const fakeStreamBody = "composed audio stream"

func (e *fakeEngine) Probe(ctx context.Context, path string) (*audio.ProbeResult, error) {
	return &audio.ProbeResult{Decodable: true, HasAudioStream: true, CodecName: "mp3"}, nil
}

func (e *fakeEngine) Transcode(ctx context.Context, spec audio.TransformSpec) error {
	e.mu.Lock()
	e.transcodes = append(e.transcodes, spec)
	e.mu.Unlock()
	if e.transcodeFn != nil {
		return e.transcodeFn(spec)
	}
	return os.WriteFile(spec.OutputPath, make([]byte, 4096), 0644)
}

func (e *fakeEngine) StartStream(ctx context.Context, spec audio.TransformSpec) (audio.Process, error) {
	e.mu.Lock()
	e.streams = append(e.streams, spec)
	if spec.ConcatManifest != "" {
		if data, err := os.ReadFile(spec.ConcatManifest); err == nil {
			e.manifests = append(e.manifests, string(data))
		}
	}
	e.mu.Unlock()
	return &fakeProcess{out: bytes.NewReader([]byte(fakeStreamBody))}, nil
}

func (e *fakeEngine) recordedStreams() []audio.TransformSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audio.TransformSpec(nil), e.streams...)
}

func (e *fakeEngine) recordedManifests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.manifests...)
}

type fakeProcess struct {
	out io.Reader
}

func (p *fakeProcess) Output() io.Reader { return p.out }
func (p *fakeProcess) Wait() error       { return nil }
func (p *fakeProcess) Kill() error       { return nil }

var _ audio.Engine = (*fakeEngine)(nil)

// testFixture 组装一套指向临时目录的完整处理管道
type testFixture struct {
	cfg     *config.Config
	store   *store.ClipStore
	engine  *fakeEngine
	handler *APIHandler
}

func newTestFixture(t *testing.T, mode config.ComposeMode) *testFixture {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		ClipsDir:          filepath.Join(base, "clips"),
		UploadTmpDir:      filepath.Join(base, "tmp"),
		AudioBitrate:      "128k",
		SampleRate:        44100,
		Channels:          2,
		MinClipBytes:      400,
		SilenceThreshold:  0.02,
		SilenceMinSeconds: 1.0,
		CrossfadeSeconds:  1.0,
		ComposeMode:       mode,
	}
	require.NoError(t, os.MkdirAll(cfg.UploadTmpDir, 0755))

	clipStore, err := store.NewClipStore(cfg.ClipsDir)
	require.NoError(t, err)

	engine := &fakeEngine{}
	return &testFixture{
		cfg:     cfg,
		store:   clipStore,
		engine:  engine,
		handler: NewAPIHandler(cfg, clipStore, engine),
	}
}

// seedClip 绕过上传流程直接发布一个片段
func (f *testFixture) seedClip(t *testing.T, content string) model.Clip {
	t.Helper()
	staged := f.store.NewStagedFile()
	require.NoError(t, os.WriteFile(staged, []byte(content), 0644))
	clip, err := f.store.Publish(staged)
	require.NoError(t, err)
	return clip
}

// uploadRequest 构造multipart上传请求
func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("clipFile", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/clips", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// dirEntryCount 目录下的文件数（不含子目录）
func dirEntryCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func TestUploadClipSuccess(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)

	rec := httptest.NewRecorder()
	f.handler.UploadClipHandler(rec, uploadRequest(t, "voice.webm", []byte("raw upload bytes")))

	require.Equal(t, http.StatusCreated, rec.Code)

	var clip model.Clip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clip))
	assert.Regexp(t, regexp.MustCompile(`^\d+\.mp3$`), clip.ID)
	assert.Equal(t, int64(4096), clip.SizeBytes)

	clips, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, clip.ID, clips[0].ID)

	// 原始上传的临时文件必须已清理
	assert.Zero(t, dirEntryCount(t, f.cfg.UploadTmpDir))
}

func TestUploadClipDegenerateRejected(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)
	// 裁剪产物过小，模拟整段静音
	f.engine.transcodeFn = func(spec audio.TransformSpec) error {
		return os.WriteFile(spec.OutputPath, make([]byte, 100), 0644)
	}

	rec := httptest.NewRecorder()
	f.handler.UploadClipHandler(rec, uploadRequest(t, "silence.webm", []byte("raw upload bytes")))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	clips, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, clips)
	// 拒绝路径同样不留任何残余
	assert.Zero(t, dirEntryCount(t, f.cfg.UploadTmpDir))
	assert.Zero(t, dirEntryCount(t, filepath.Join(f.cfg.ClipsDir, ".staging")))
}

func TestUploadClipMissingFormField(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("unrelated", "value"))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/clips", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	f.handler.UploadClipHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadClipWriteTimeAccumulates(t *testing.T) {
	f := newTestFixture(t, config.ComposeWriteTime)

	rec := httptest.NewRecorder()
	f.handler.UploadClipHandler(rec, uploadRequest(t, "voice.webm", []byte("raw upload bytes")))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"master": true}`, rec.Body.String())

	// writetime模式下没有目录片段，只有一个母带
	assert.FileExists(t, f.store.MasterPath())
	clips, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestListClipsHandler(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)
	c1 := f.seedClip(t, "clip one bytes")
	c2 := f.seedClip(t, "clip two bytes")

	rec := httptest.NewRecorder()
	f.handler.ListClipsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/clips", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var clips []model.Clip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clips))
	require.Len(t, clips, 2)
	assert.Equal(t, c1.ID, clips[0].ID)
	assert.Equal(t, c2.ID, clips[1].ID)
}

func TestResetHandlerDisabledWithoutToken(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)
	f.seedClip(t, "survivor")

	rec := httptest.NewRecorder()
	f.handler.ResetHandler(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	clips, err := f.store.List()
	require.NoError(t, err)
	assert.Len(t, clips, 1)
}

func TestResetHandlerRejectsBadToken(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)
	f.cfg.ResetToken = "correct-token"
	f.seedClip(t, "survivor")

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	req.Header.Set("X-Reset-Token", "wrong-token")
	rec := httptest.NewRecorder()
	f.handler.ResetHandler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	clips, err := f.store.List()
	require.NoError(t, err)
	assert.Len(t, clips, 1)
}

func TestResetHandlerClearsWall(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)
	f.cfg.ResetToken = "correct-token"
	f.seedClip(t, "one")
	f.seedClip(t, "two")

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	req.Header.Set("X-Reset-Token", "correct-token")
	rec := httptest.NewRecorder()
	f.handler.ResetHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed": 2}`, rec.Body.String())

	clips, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestStatsHandlerZerosWithoutRedis(t *testing.T) {
	f := newTestFixture(t, config.ComposeReadTime)

	rec := httptest.NewRecorder()
	f.handler.StatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["uploadsTotal"])
}
