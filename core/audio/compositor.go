package audio

import (
	"context"
	"fmt"

	"echowall/model"
)

// Compositor 驱动处理引擎，把一组有序片段合成为一条输出流。
//
// 两种请求时策略：
//   - concat: 通过生成的清单文件走concat解复用器，按列表顺序重编码拼接。
//     避免了N路输入滤镜图逐对链接的膨胀。
//   - mix: 所有输入同时混叠，输出时长等于最长输入。每路输入都要完整解码，
//     资源消耗远高于concat；高负载下这是最先需要降级回concat的策略。
//
// 第三种策略（上传时交叉淡化累积）在MasterAccumulator里，
// 与请求时合成是互斥的架构分支。
type Compositor struct {
	engine Engine
	output OutputParams
	tmpDir string // 清单等临时产物目录
}

// NewCompositor 创建流合成器
func NewCompositor(engine Engine, output OutputParams, tmpDir string) *Compositor {
	return &Compositor{engine: engine, output: output, tmpDir: tmpDir}
}

// Start 按策略启动一次流式合成，要求至少2个片段。
// 返回运行中的进程和清单路径（concat以外策略为空串）；
// 进程的Wait/Kill和清单的删除都由调用方（CompositionJob）负责。
func (c *Compositor) Start(ctx context.Context, clips []model.Clip, strategy model.CompositionStrategy) (Process, string, error) {
	if len(clips) < 2 {
		return nil, "", fmt.Errorf("compositor needs at least 2 clips, got %d", len(clips))
	}

	paths := make([]string, len(clips))
	for i, clip := range clips {
		paths[i] = clip.Path
	}

	switch strategy {
	case model.StrategyConcat:
		manifest, err := WriteConcatManifest(c.tmpDir, paths)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrCompositionEngineFailure, err)
		}
		proc, err := c.engine.StartStream(ctx, TransformSpec{
			ConcatManifest: manifest,
			Output:         c.output,
		})
		if err != nil {
			return nil, manifest, fmt.Errorf("%w: %v", ErrCompositionEngineFailure, err)
		}
		return proc, manifest, nil

	case model.StrategyMix:
		proc, err := c.engine.StartStream(ctx, TransformSpec{
			Inputs:  paths,
			Complex: MixGraph(len(paths)),
			Output:  c.output,
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrCompositionEngineFailure, err)
		}
		return proc, "", nil

	default:
		return nil, "", fmt.Errorf("unknown composition strategy %q", strategy)
	}
}

// ContentType 合成输出流的MIME类型
func (c *Compositor) ContentType() string {
	return "audio/mpeg"
}
