package store

import (
	"context"
	"path/filepath"

	"echowall/logger"

	"github.com/fsnotify/fsnotify"
)

// CatalogEvent 目录变化事件类型
type CatalogEvent string

const (
	ClipAdded   CatalogEvent = "clip_added"
	ClipRemoved CatalogEvent = "clip_removed"
)

// Watcher 监听片段目录的外部变化（新片段落地、片段被删）。
// 只用于日志和事件推送，绝不回填任何内存索引——
// 目录状态永远在请求时重新扫描。
type Watcher struct {
	store  *ClipStore
	notify func(event CatalogEvent, clipID string)
}

// NewWatcher 创建目录监听器，notify在监听协程里被调用
func NewWatcher(store *ClipStore, notify func(event CatalogEvent, clipID string)) *Watcher {
	return &Watcher{store: store, notify: notify}
}

// Run 阻塞运行直到ctx取消
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.store.Dir()); err != nil {
		return err
	}

	logger.Info("片段目录监听已启动", logger.String("dir", w.store.Dir()))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("片段目录监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := clipNamePattern.FindString(filepath.Base(event.Name))
	if name == "" {
		// 母带、暂存目录或无关文件
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		// 发布是rename，对目录只表现为一次Create
		logger.Debug("检测到新片段", logger.String("clipId", name))
		if w.notify != nil {
			w.notify(ClipAdded, name)
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		logger.Debug("检测到片段被移除", logger.String("clipId", name))
		if w.notify != nil {
			w.notify(ClipRemoved, name)
		}
	case event.Op&fsnotify.Write != 0:
		// 已发布片段是不可变的，出现写入说明有外部进程在改动
		logger.Warn("已发布片段被外部写入", logger.String("clipId", name))
	}
}
