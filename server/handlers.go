package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"echowall/cache"
	"echowall/config"
	"echowall/core/audio"
	"echowall/core/events"
	"echowall/core/store"
	"echowall/logger"
	"echowall/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg         *config.Config
	store       *store.ClipStore
	trimmer     *audio.Trimmer
	validator   *audio.Validator
	compositor  *audio.Compositor
	accumulator *audio.MasterAccumulator
	hub         *events.Hub // 可为nil（测试时）
}

// NewAPIHandler 创建API处理器并组装整条处理管道
func NewAPIHandler(cfg *config.Config, clipStore *store.ClipStore, engine audio.Engine) *APIHandler {
	output := audio.OutputParams{
		Codec:      "libmp3lame",
		Bitrate:    cfg.AudioBitrate,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Format:     "mp3",
	}

	return &APIHandler{
		cfg:         cfg,
		store:       clipStore,
		trimmer:     audio.NewTrimmer(engine, output, cfg.SilenceThreshold, cfg.SilenceMinSeconds, cfg.MinClipBytes),
		validator:   audio.NewValidator(engine, cfg.MinClipBytes),
		compositor:  audio.NewCompositor(engine, output, cfg.UploadTmpDir),
		accumulator: audio.NewMasterAccumulator(engine, clipStore, output, cfg.CrossfadeSeconds),
	}
}

func (h *APIHandler) publish(event events.Event) {
	if h.hub != nil {
		h.hub.Publish(event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写入JSON响应失败", logger.ErrorField(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// UploadClipHandler 处理片段上传。
// multipart字段：clipFile（音频文件，容器类型由调用方声明的文件名后缀提示）。
// 流程：存临时文件 → 静音裁剪+转码 → 发布（或并入母带）。
// 任何失败都不会留下半成品：临时上传与暂存产物在所有路径上都被删除。
func (h *APIHandler) UploadClipHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil { // 64MB max memory
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("failed to parse multipart form: %v", err)})
		return
	}

	clipFile, header, err := r.FormFile("clipFile")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing 'clipFile' in form"})
		return
	}
	defer clipFile.Close()

	// 按调用方声明的扩展名落盘，处理引擎靠它推断输入容器
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".bin"
	}

	tempPath, err := saveUploadToTemp(clipFile, h.cfg.UploadTmpDir, ext)
	if err != nil {
		logger.Error("保存上传临时文件失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store upload"})
		return
	}
	// 无论成败都删掉原始上传
	defer os.Remove(tempPath)

	staged := h.store.NewStagedFile()
	// 发布成功时rename走了暂存文件，这里的Remove静默无事发生；
	// 其余所有路径靠它兜底
	defer os.Remove(staged)

	if err := h.trimmer.Trim(r.Context(), tempPath, staged); err != nil {
		cache.IncrUploadRejects()
		switch {
		case errors.Is(err, audio.ErrTrimResultDegenerate):
			logger.Info("上传被拒绝：录音为空或过短", logger.String("filename", header.Filename))
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "recording was empty or too short"})
		case errors.Is(err, audio.ErrUploadUnreadable):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "upload file unreadable"})
		default:
			logger.Error("静音裁剪失败",
				logger.String("filename", header.Filename),
				logger.ErrorField(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audio processing failed"})
		}
		return
	}

	// writetime模式：并入母带，不产生目录片段
	if h.cfg.ComposeMode == config.ComposeWriteTime {
		if err := h.accumulator.Accumulate(r.Context(), staged); err != nil {
			cache.IncrUploadRejects()
			logger.Error("母带累积失败", logger.ErrorField(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audio processing failed"})
			return
		}
		cache.IncrUploads()
		writeJSON(w, http.StatusCreated, map[string]interface{}{"master": true})
		return
	}

	clip, err := h.store.Publish(staged)
	if err != nil {
		cache.IncrUploadRejects()
		logger.Error("发布片段失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to publish clip"})
		return
	}

	cache.IncrUploads()
	go storage.ArchiveClip(clip.ID, clip.Path)

	writeJSON(w, http.StatusCreated, clip)
}

// saveUploadToTemp 把上传内容写入临时文件，返回其路径
func saveUploadToTemp(file multipart.File, dir, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// ListClipsHandler 返回目录清单
func (h *APIHandler) ListClipsHandler(w http.ResponseWriter, r *http.Request) {
	clips, err := h.store.List()
	if err != nil {
		logger.Error("读取片段目录失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list clips"})
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

// ResetHandler 清空整面墙。由X-Reset-Token共享密钥把关，
// 未配置密钥时该操作整体禁用。
func (h *APIHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ResetToken == "" {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "reset is disabled"})
		return
	}

	token := r.Header.Get("X-Reset-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.ResetToken)) != 1 {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid reset token"})
		return
	}

	removed, err := h.store.Reset()
	if err != nil {
		logger.Error("清空片段目录失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}

	cache.IncrResets()
	h.publish(events.Event{Type: events.CatalogReset})
	go func() {
		// 请求上下文随响应结束而取消，归档清理用独立的超时
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		storage.ClearArchive(ctx)
	}()

	logger.Info("整面墙已清空", logger.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// StatsHandler 返回统计快照，Redis未配置时全为零
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := cache.Snapshot(r.Context(), []string{"concat", "mix"})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
