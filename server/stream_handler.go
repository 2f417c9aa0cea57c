package server

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"strconv"

	"echowall/cache"
	"echowall/config"
	"echowall/core/audio"
	"echowall/core/events"
	"echowall/logger"
	"echowall/model"
)

// parseOrderPolicy 解析order参数，默认chronological
func parseOrderPolicy(raw string) (model.OrderPolicy, bool) {
	switch raw {
	case "", string(model.OrderChronological):
		return model.OrderChronological, true
	case string(model.OrderAnchoredShuffle):
		return model.OrderAnchoredShuffle, true
	default:
		return "", false
	}
}

// parseStrategy 解析mode参数，默认concat
func parseStrategy(raw string) (model.CompositionStrategy, bool) {
	switch raw {
	case "", string(model.StrategyConcat):
		return model.StrategyConcat, true
	case string(model.StrategyMix):
		return model.StrategyMix, true
	default:
		return "", false
	}
}

// StreamHandler 处理播放请求：校验目录、排序、合成并流式返回。
// 查询参数：
//   - order: chronological（默认）| special
//   - mode:  concat（默认）| mix
//   - seed:  可选整数，固定special排序的随机种子（调试/测试用）
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ComposeMode == config.ComposeWriteTime {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "server runs in writetime mode, use /api/master"})
		return
	}

	policy, ok := parseOrderPolicy(r.URL.Query().Get("order"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown order policy"})
		return
	}
	strategy, ok := parseStrategy(r.URL.Query().Get("mode"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown composition mode"})
		return
	}

	var rng *rand.Rand
	if seedRaw := r.URL.Query().Get("seed"); seedRaw != "" {
		seed, err := strconv.ParseInt(seedRaw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid seed"})
			return
		}
		rng = rand.New(rand.NewSource(seed))
	}

	clips, err := h.store.List()
	if err != nil {
		logger.Error("读取片段目录失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list clips"})
		return
	}

	// 每次请求重新探测全部候选，目录状态可能在请求之间被外部破坏
	eligible := h.validator.Eligible(r.Context(), clips)

	switch len(eligible) {
	case 0:
		// 墙上还没有可播的内容，属于正常空状态
		w.WriteHeader(http.StatusNoContent)
		return

	case 1:
		// 快速路径：唯一片段原样返回，不起子进程不重编码
		cache.IncrPlays(string(strategy))
		logger.Debug("单片段快速路径", logger.String("clipId", eligible[0].ID))
		http.ServeFile(w, r, eligible[0].Path)
		return
	}

	ordered := audio.Sequence(eligible, policy, rng)

	job := audio.NewCompositionJob(h.compositor, ordered, strategy)

	cache.IncrPlays(string(strategy))
	h.publish(events.Event{Type: events.StreamStarted})

	logger.Info("开始合成播放",
		logger.String("jobId", job.ID),
		logger.String("order", string(policy)),
		logger.String("strategy", string(strategy)),
		logger.Int("clipCount", len(ordered)))

	w.Header().Set("Content-Type", h.compositor.ContentType())
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	err = job.Run(r.Context(), w)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		// 客户端断开，任务已自行清理
	case !job.StartedStreaming():
		// 还没发出任何字节，仍可返回服务错误
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "composition failed"})
	default:
		// 流已开始，只能提前结束；除日志外调用方不会再有任何信号
		logger.Warn("合成流提前结束",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
}

// MasterHandler writetime模式下返回母带文件
func (h *APIHandler) MasterHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ComposeMode != config.ComposeWriteTime {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "server runs in readtime mode, use /api/stream"})
		return
	}

	master := h.accumulator.MasterPath()
	if _, err := os.Stat(master); err != nil {
		// 还没有任何上传
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cache.IncrPlays("master")
	http.ServeFile(w, r, master)
}
