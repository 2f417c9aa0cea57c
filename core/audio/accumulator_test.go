package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"echowall/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccumulatorFixture(t *testing.T, engine Engine) (*MasterAccumulator, *store.ClipStore) {
	t.Helper()
	st, err := store.NewClipStore(filepath.Join(t.TempDir(), "clips"))
	require.NoError(t, err)
	return NewMasterAccumulator(engine, st, testOutput, 1.0), st
}

func writeTrimmedClip(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trimmed.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func TestAccumulateFirstClipBecomesMaster(t *testing.T) {
	engine := &stubEngine{}
	acc, _ := newAccumulatorFixture(t, engine)

	trimmed := writeTrimmedClip(t, 5000)
	require.NoError(t, acc.Accumulate(context.Background(), trimmed))
	require.FileExists(t, acc.MasterPath())

	// 首个片段直接转码成母带，没有交叉淡化
	specs := engine.recordedTranscodes()
	require.Len(t, specs, 1)
	assert.Equal(t, []string{trimmed}, specs[0].Inputs)
	assert.Nil(t, specs[0].Complex)
}

func TestAccumulateCrossfadesIntoExistingMaster(t *testing.T) {
	engine := &stubEngine{}
	acc, _ := newAccumulatorFixture(t, engine)

	first := writeTrimmedClip(t, 5000)
	require.NoError(t, acc.Accumulate(context.Background(), first))

	second := writeTrimmedClip(t, 6000)
	require.NoError(t, acc.Accumulate(context.Background(), second))

	specs := engine.recordedTranscodes()
	require.Len(t, specs, 2)
	// 第二次是 [旧母带, 新片段] 的交叉淡化
	assert.Equal(t, []string{acc.MasterPath(), second}, specs[1].Inputs)
	require.NotNil(t, specs[1].Complex)
	assert.Equal(t, "[0:a][1:a]acrossfade=d=1[out]", specs[1].Complex.String())
}

func TestAccumulateEngineFailureKeepsOldMaster(t *testing.T) {
	calls := 0
	engine := &stubEngine{
		transcodeFn: func(ctx context.Context, spec TransformSpec) error {
			calls++
			if calls > 1 {
				return fmt.Errorf("ffmpeg exploded")
			}
			return os.WriteFile(spec.OutputPath, []byte("original master"), 0644)
		},
	}
	acc, _ := newAccumulatorFixture(t, engine)

	require.NoError(t, acc.Accumulate(context.Background(), writeTrimmedClip(t, 5000)))

	err := acc.Accumulate(context.Background(), writeTrimmedClip(t, 5000))
	assert.ErrorIs(t, err, ErrCompositionEngineFailure)

	// 失败不能碰正在对外服务的母带
	data, readErr := os.ReadFile(acc.MasterPath())
	require.NoError(t, readErr)
	assert.Equal(t, "original master", string(data))
}
