package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"echowall/logger"
	"echowall/model"

	"github.com/google/uuid"
)

// ClipExt 片段的统一扩展名，上传经过转码后一律是MP3
const ClipExt = ".mp3"

// MasterName writetime模式下母带文件名，List会跳过它
const MasterName = "master" + ClipExt

const stagingDirName = ".staging"

// clipNamePattern 合法片段文件名：毫秒时间戳 + 扩展名。
// 只有匹配的文件才会进入目录清单，顺带挡住路径穿越。
var clipNamePattern = regexp.MustCompile(`^(\d+)\.mp3$`)

// ClipStore 目录式片段仓库。
// 目录就是唯一事实来源，不维护内存索引；
// 发布通过"写入暂存目录+rename"完成，读者永远看不到半成品。
type ClipStore struct {
	dir        string
	stagingDir string

	// mu 串行化破坏性操作：清空、发布、母带累积。
	// 只读的目录扫描不需要持有它。
	mu sync.Mutex

	// lastID 保证同进程内ID单调不减
	idMu   sync.Mutex
	lastID int64
}

// NewClipStore 打开（必要时创建）片段目录
func NewClipStore(dir string) (*ClipStore, error) {
	stagingDir := filepath.Join(dir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create clip store directory: %w", err)
	}
	return &ClipStore{dir: dir, stagingDir: stagingDir}, nil
}

// Dir 返回片段目录
func (s *ClipStore) Dir() string {
	return s.dir
}

// MasterPath writetime模式下母带文件的路径
func (s *ClipStore) MasterPath() string {
	return filepath.Join(s.dir, MasterName)
}

// NewStagedFile 返回暂存目录中一个未使用的文件路径。
// 暂存目录和片段目录同属一个文件系统，之后的rename才是原子的。
func (s *ClipStore) NewStagedFile() string {
	return filepath.Join(s.stagingDir, uuid.NewString()+ClipExt)
}

// nextID 分配下一个片段ID，毫秒时间戳，单调不减
func (s *ClipStore) nextID() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Publish 把一个暂存文件原子地发布为新片段。
// 成功后暂存文件不复存在，失败时由调用方负责清理。
func (s *ClipStore) Publish(stagedPath string) (model.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	name := strconv.FormatInt(id, 10) + ClipExt
	dest := filepath.Join(s.dir, name)

	if err := os.Rename(stagedPath, dest); err != nil {
		return model.Clip{}, fmt.Errorf("publish clip: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return model.Clip{}, fmt.Errorf("stat published clip: %w", err)
	}

	clip := model.Clip{
		ID:        name,
		Path:      dest,
		SizeBytes: info.Size(),
		CreatedAt: time.UnixMilli(id),
	}

	logger.Info("片段已发布",
		logger.String("clipId", clip.ID),
		logger.Int64("sizeBytes", clip.SizeBytes))

	return clip, nil
}

// List 扫描目录，返回按创建时间从旧到新排列的片段清单。
// 无法解析的文件名（母带、暂存残留、外来文件）一律跳过。
func (s *ClipStore) List() ([]model.Clip, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read clip store directory: %w", err)
	}

	clips := make([]model.Clip, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := clipNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		millis, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// 可能刚被并发的清空删掉了
			continue
		}
		clips = append(clips, model.Clip{
			ID:        entry.Name(),
			Path:      filepath.Join(s.dir, entry.Name()),
			SizeBytes: info.Size(),
			CreatedAt: time.UnixMilli(millis),
		})
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].CreatedAt.Before(clips[j].CreatedAt)
	})

	return clips, nil
}

// Reset 删除所有片段、母带和暂存残留，返回删除的片段数。
// 与进行中的发布/母带累积互斥。
func (s *ClipStore) Reset() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read clip store directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		isClip := clipNamePattern.MatchString(entry.Name())
		if !isClip && entry.Name() != MasterName {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		if isClip {
			removed++
		}
	}

	// 清掉暂存目录里的孤儿文件
	staged, err := os.ReadDir(s.stagingDir)
	if err == nil {
		for _, entry := range staged {
			_ = os.Remove(filepath.Join(s.stagingDir, entry.Name()))
		}
	}

	logger.Info("片段目录已清空", logger.Int("removed", removed))
	return removed, nil
}

// WithLock 在仓库互斥范围内执行fn。
// writetime模式的"读取母带-合成-rename覆盖"整个周期都要在这里面跑，
// 避免与清空或并发上传交错。
func (s *ClipStore) WithLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
