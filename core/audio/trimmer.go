package audio

import (
	"context"
	"fmt"
	"os"

	"echowall/logger"
)

// Trimmer 把一个原始上传规整为墙上可用的片段：
// 去除首尾近静音并转码为统一编码。
type Trimmer struct {
	engine    Engine
	output    OutputParams
	threshold float64 // 静音幅度阈值，满幅比例
	minRun    float64 // 最短静音时长（秒）
	minBytes  int64   // 裁剪产物小于该值视为空录音
}

// NewTrimmer 创建静音裁剪器
func NewTrimmer(engine Engine, output OutputParams, threshold, minRun float64, minBytes int64) *Trimmer {
	return &Trimmer{
		engine:    engine,
		output:    output,
		threshold: threshold,
		minRun:    minRun,
		minBytes:  minBytes,
	}
}

// Trim 处理inputPath的原始音频，把裁剪后的统一编码产物写到outputPath。
// 失败时不会留下outputPath的半成品；inputPath的删除由调用方负责。
//
// 错误种类：
//   - ErrUploadUnreadable   输入不存在或为空
//   - ErrTrimEngineFailure  处理引擎执行失败
//   - ErrTrimResultDegenerate 整段录音基本是静音，产物过小
func (t *Trimmer) Trim(ctx context.Context, inputPath, outputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadUnreadable, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty upload", ErrUploadUnreadable)
	}

	spec := TransformSpec{
		Inputs:     []string{inputPath},
		Chain:      TrimChain(t.threshold, t.minRun),
		Output:     t.output,
		OutputPath: outputPath,
	}

	if err := t.engine.Transcode(ctx, spec); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("%w: %v", ErrTrimEngineFailure, err)
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("%w: trimmed output missing: %v", ErrTrimEngineFailure, err)
	}

	// 整段静音会被裁成零长度输出，必须当作失败而不是悄悄入库
	if outInfo.Size() < t.minBytes {
		os.Remove(outputPath)
		logger.Info("裁剪产物过小，按空录音拒绝",
			logger.String("input", inputPath),
			logger.Int64("outputBytes", outInfo.Size()),
			logger.Int64("minBytes", t.minBytes))
		return ErrTrimResultDegenerate
	}

	logger.Debug("静音裁剪完成",
		logger.String("input", inputPath),
		logger.Int64("inputBytes", info.Size()),
		logger.Int64("outputBytes", outInfo.Size()))

	return nil
}
