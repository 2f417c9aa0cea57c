package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ClipStore {
	t.Helper()
	s, err := NewClipStore(filepath.Join(t.TempDir(), "clips"))
	require.NoError(t, err)
	return s
}

func stageClip(t *testing.T, s *ClipStore, content string) string {
	t.Helper()
	staged := s.NewStagedFile()
	require.NoError(t, os.WriteFile(staged, []byte(content), 0644))
	return staged
}

func TestPublishAndList(t *testing.T) {
	s := newTestStore(t)

	c1, err := s.Publish(stageClip(t, s, "first clip bytes"))
	require.NoError(t, err)
	c2, err := s.Publish(stageClip(t, s, "second"))
	require.NoError(t, err)

	assert.Equal(t, int64(16), c1.SizeBytes)
	assert.FileExists(t, c1.Path)

	clips, err := s.List()
	require.NoError(t, err)
	require.Len(t, clips, 2)
	// 从旧到新
	assert.Equal(t, c1.ID, clips[0].ID)
	assert.Equal(t, c2.ID, clips[1].ID)
	assert.True(t, clips[0].CreatedAt.Before(clips[1].CreatedAt) || clips[0].CreatedAt.Equal(clips[1].CreatedAt))
}

func TestPublishRemovesStagedFile(t *testing.T) {
	s := newTestStore(t)

	staged := stageClip(t, s, "data")
	_, err := s.Publish(staged)
	require.NoError(t, err)

	assert.NoFileExists(t, staged)
}

func TestPublishIDsMonotonic(t *testing.T) {
	s := newTestStore(t)

	// 同一毫秒内连续发布，ID仍须严格递增
	var prev string
	for i := 0; i < 10; i++ {
		c, err := s.Publish(stageClip(t, s, "x"))
		require.NoError(t, err)
		if prev != "" {
			assert.Greater(t, c.ID, prev)
		}
		prev = c.ID
	}
}

func TestPublishMissingStagedFile(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Publish(filepath.Join(s.Dir(), ".staging", "nonexistent.mp3"))
	assert.Error(t, err)
}

func TestListSkipsForeignFiles(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Publish(stageClip(t, s, "real clip"))
	require.NoError(t, err)

	// 母带、外来文件和暂存残留都不算片段
	require.NoError(t, os.WriteFile(s.MasterPath(), []byte("master"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "evil.mp3.bak"), []byte("x"), 0644))
	stageClip(t, s, "orphan")

	clips, err := s.List()
	require.NoError(t, err)
	assert.Len(t, clips, 1)
}

func TestListEmptyStore(t *testing.T) {
	s := newTestStore(t)

	clips, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Publish(stageClip(t, s, "clip"))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(s.MasterPath(), []byte("master"), 0644))
	orphan := stageClip(t, s, "orphan")
	foreign := filepath.Join(s.Dir(), "keep.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0644))

	removed, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	clips, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, clips)

	// 母带和暂存孤儿一并清掉，无关文件保留
	assert.NoFileExists(t, s.MasterPath())
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, foreign)
}

func TestResetEmptyStore(t *testing.T) {
	s := newTestStore(t)

	removed, err := s.Reset()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "clips")
	s1, err := NewClipStore(dir)
	require.NoError(t, err)
	c, err := s1.Publish(stageClip(t, s1, "persisted"))
	require.NoError(t, err)

	// 目录就是全部状态，重开后清单不变
	s2, err := NewClipStore(dir)
	require.NoError(t, err)
	clips, err := s2.List()
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, c.ID, clips[0].ID)
}
