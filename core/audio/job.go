package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"echowall/logger"
	"echowall/model"

	"github.com/google/uuid"
)

// JobState 合成任务状态机：
// Idle → Starting → Streaming → {Completed | Failed | Cancelled}
type JobState int32

const (
	JobIdle JobState = iota
	JobStarting
	JobStreaming
	JobCompleted
	JobFailed
	JobCancelled
)

// String 状态名
func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobStarting:
		return "starting"
	case JobStreaming:
		return "streaming"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CompositionJob 一次合成请求的进程与临时资源的唯一属主。
// 任务与创建它的请求同生共死：请求结束、出错或客户端断开时，
// 子进程被强制终止，临时清单被删除。
type CompositionJob struct {
	ID       string
	Strategy model.CompositionStrategy

	compositor *Compositor
	clips      []model.Clip

	state    atomic.Int32
	streamed atomic.Bool
	proc     Process
	manifest string

	// 所有终态走同一个清理入口，漏一处就是磁盘慢性泄漏
	cleanupOnce sync.Once
}

// NewCompositionJob 创建合成任务
func NewCompositionJob(compositor *Compositor, clips []model.Clip, strategy model.CompositionStrategy) *CompositionJob {
	return &CompositionJob{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		compositor: compositor,
		clips:      clips,
	}
}

// State 当前状态
func (j *CompositionJob) State() JobState {
	return JobState(j.state.Load())
}

func (j *CompositionJob) setState(s JobState) {
	j.state.Store(int32(s))
}

// StartedStreaming 是否已有输出字节发出。
// 一旦为真，响应头已经提交，失败只能表现为流提前结束。
func (j *CompositionJob) StartedStreaming() bool {
	return j.streamed.Load()
}

// cleanup 删除本次任务的临时产物，幂等
func (j *CompositionJob) cleanup() {
	j.cleanupOnce.Do(func() {
		if j.manifest != "" {
			if err := os.Remove(j.manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("删除合成清单失败",
					logger.String("jobId", j.ID),
					logger.String("manifest", j.manifest),
					logger.ErrorField(err))
			}
		}
	})
}

// Run 执行合成并把输出增量写入w，阻塞直到到达终态。
//
// 进入Streaming后响应头已经发出，之后的失败只能提前结束流，
// 无法再改变响应状态——这类失败只会出现在日志里。
// ctx取消（客户端断开）会立即杀掉子进程并清理临时产物。
func (j *CompositionJob) Run(ctx context.Context, w io.Writer) error {
	j.setState(JobStarting)
	defer j.cleanup()

	startedAt := time.Now()

	proc, manifest, err := j.compositor.Start(ctx, j.clips, j.Strategy)
	j.manifest = manifest
	if err != nil {
		j.setState(JobFailed)
		return err
	}
	j.proc = proc

	// 监视取消：必须杀进程本身，只关管道会留下孤儿继续烧CPU
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			if err := proc.Kill(); err != nil {
				logger.Warn("终止合成进程失败",
					logger.String("jobId", j.ID),
					logger.ErrorField(err))
			}
		case <-watchDone:
		}
	}()

	flusher, _ := w.(interface{ Flush() })

	var written int64
	buf := make([]byte, 64*1024)
	var copyErr error
	for {
		n, readErr := proc.Output().Read(buf)
		if n > 0 {
			if j.State() == JobStarting {
				j.setState(JobStreaming)
				j.streamed.Store(true)
				logger.Debug("首批合成字节已就绪",
					logger.String("jobId", j.ID),
					logger.Duration("firstByteAfter", time.Since(startedAt)))
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				copyErr = werr
				break
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			copyErr = readErr
			break
		}
	}

	waitErr := proc.Wait()

	switch {
	case ctx.Err() != nil:
		// 客户端断开，进程已被监视协程杀掉
		j.setState(JobCancelled)
		logger.Info("合成任务被取消",
			logger.String("jobId", j.ID),
			logger.Int64("bytesWritten", written))
		return ctx.Err()

	case copyErr != nil:
		// 写端失败：多半也是对端断开
		_ = proc.Kill()
		j.setState(JobCancelled)
		logger.Info("合成输出写入中断",
			logger.String("jobId", j.ID),
			logger.Int64("bytesWritten", written),
			logger.ErrorField(copyErr))
		return copyErr

	case waitErr != nil:
		j.setState(JobFailed)
		// 已经在流式输出的话，调用方只能让流提前结束，这里是唯一的信号
		logger.Error("合成引擎执行失败",
			logger.String("jobId", j.ID),
			logger.String("strategy", string(j.Strategy)),
			logger.Int64("bytesWritten", written),
			logger.ErrorField(waitErr))
		return errors.Join(ErrCompositionEngineFailure, waitErr)

	default:
		j.setState(JobCompleted)
		logger.Info("合成任务完成",
			logger.String("jobId", j.ID),
			logger.String("strategy", string(j.Strategy)),
			logger.Int("clipCount", len(j.clips)),
			logger.Int64("bytesWritten", written),
			logger.Duration("totalTime", time.Since(startedAt)))
		return nil
	}
}
