package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"echowall/core/store"
	"echowall/logger"
)

// MasterAccumulator 实现上传时合成策略：每个新片段立即与现有母带
// 交叉淡化合并，母带整体被原子替换。播放退化为读一个文件，
// 代价是上传变贵，且事后无法重排或剔除单个贡献。
//
// 这是与请求时合成互斥的架构分支——目录要么是一堆不可变片段，
// 要么是一个可变母带，不能两者都是。
type MasterAccumulator struct {
	engine    Engine
	store     *store.ClipStore
	output    OutputParams
	crossfade float64 // 交叉淡化时长（秒）
}

// NewMasterAccumulator 创建母带累积器
func NewMasterAccumulator(engine Engine, st *store.ClipStore, output OutputParams, crossfade float64) *MasterAccumulator {
	return &MasterAccumulator{
		engine:    engine,
		store:     st,
		output:    output,
		crossfade: crossfade,
	}
}

// MasterPath 当前母带路径
func (a *MasterAccumulator) MasterPath() string {
	return a.store.MasterPath()
}

// Accumulate 把一个已裁剪的片段并入母带。
// 整个"读母带-合成-rename覆盖"周期在仓库互斥范围内执行，
// 与清空和并发上传互斥；合成写到临时路径再rename，
// 中途崩溃不会弄坏正在对外服务的母带。
func (a *MasterAccumulator) Accumulate(ctx context.Context, trimmedPath string) error {
	return a.store.WithLock(func() error {
		master := a.store.MasterPath()
		tmp := a.store.NewStagedFile()

		var spec TransformSpec
		_, err := os.Stat(master)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// 第一个片段：直接成为母带
			spec = TransformSpec{
				Inputs:     []string{trimmedPath},
				Output:     a.output,
				OutputPath: tmp,
			}
		case err != nil:
			return fmt.Errorf("%w: stat master: %v", ErrStoreIO, err)
		default:
			spec = TransformSpec{
				Inputs:     []string{master, trimmedPath},
				Complex:    CrossfadeGraph(a.crossfade),
				Output:     a.output,
				OutputPath: tmp,
			}
		}

		if err := a.engine.Transcode(ctx, spec); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("%w: %v", ErrCompositionEngineFailure, err)
		}

		if err := os.Rename(tmp, master); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("%w: replace master: %v", ErrStoreIO, err)
		}

		info, err := os.Stat(master)
		if err == nil {
			logger.Info("母带已更新",
				logger.String("master", master),
				logger.Int64("sizeBytes", info.Size()))
		}
		return nil
	})
}
