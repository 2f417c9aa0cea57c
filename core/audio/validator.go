package audio

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"echowall/logger"
	"echowall/model"
)

// 可参与播放的容器扩展名。仓库统一发布MP3，这里仍按白名单校验，
// 外部塞进目录的文件不会只凭大小就混进播放列表。
var recognizedExts = map[string]bool{
	".mp3": true,
}

// Validator 在每次播放请求时重新确认片段结构完好。
// 探测结果不做缓存：失败的原地处理随时可能把文件弄坏，缓存会吃到陈旧结论。
type Validator struct {
	engine   Engine
	minBytes int64
}

// NewValidator 创建片段校验器
func NewValidator(engine Engine, minBytes int64) *Validator {
	return &Validator{engine: engine, minBytes: minBytes}
}

// Eligible 返回clips中可以安全参与播放的子集，保持输入顺序。
// 所有候选并发探测，全部返回后才汇总——不提前退出，
// 否则唯一有效的片段可能在别的探测还没结束时被漏掉。
func (v *Validator) Eligible(ctx context.Context, clips []model.Clip) []model.Clip {
	ok := make([]bool, len(clips))
	var wg sync.WaitGroup

	for i := range clips {
		clip := clips[i]

		if !recognizedExts[strings.ToLower(filepath.Ext(clip.ID))] {
			logger.Debug("片段扩展名不被识别，跳过", logger.String("clipId", clip.ID))
			continue
		}
		if clip.SizeBytes < v.minBytes {
			logger.Warn("片段小于最小阈值，疑似损坏，跳过",
				logger.String("clipId", clip.ID),
				logger.Int64("sizeBytes", clip.SizeBytes))
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := v.engine.Probe(ctx, clip.Path)
			if err != nil {
				logger.Warn("片段探测失败，从播放列表排除",
					logger.String("clipId", clip.ID),
					logger.ErrorField(err))
				return
			}
			if !result.Decodable || !result.HasAudioStream {
				logger.Warn("片段不可解码或缺少音频流，从播放列表排除",
					logger.String("clipId", clip.ID),
					logger.Bool("decodable", result.Decodable),
					logger.Bool("hasAudioStream", result.HasAudioStream))
				return
			}
			ok[i] = true
		}(i)
	}

	wg.Wait()

	eligible := make([]model.Clip, 0, len(clips))
	for i, clip := range clips {
		if ok[i] {
			eligible = append(eligible, clip)
		}
	}
	return eligible
}
