package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"echowall/logger"
)

// OutputParams 统一输出编码参数。
// 所有转码共用一套参数，异构来源的片段才能无缝拼接。
type OutputParams struct {
	Codec      string // e.g. "libmp3lame"
	Bitrate    string // e.g. "128k"
	SampleRate int    // e.g. 44100
	Channels   int    // e.g. 2
	Format     string // e.g. "mp3"
}

// ProbeResult 结构探测结果
type ProbeResult struct {
	Decodable      bool
	HasAudioStream bool
	CodecName      string
	Duration       float64
}

// TransformSpec 一次处理引擎调用的完整描述。
// ConcatManifest与Inputs互斥；Chain用于单输入 -af，Complex用于多输入 -filter_complex。
type TransformSpec struct {
	Inputs         []string
	ConcatManifest string
	Chain          *Chain
	Complex        *Graph
	Output         OutputParams
	OutputPath     string // 为空则输出到stdout管道
}

// Process 一次正在运行的流式转码。
// Kill必须随时可调用，且要真正终止外部进程而不只是关管道。
type Process interface {
	Output() io.Reader
	Wait() error
	Kill() error
}

// Engine 外部媒体处理引擎的窄接口。
// 核心只依赖这三个操作，滤镜表达式语法是适配器内部细节。
type Engine interface {
	// Probe 检查文件是否可解码且含有音频流
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	// Transcode 执行到文件的转换，OutputPath必须非空
	Transcode(ctx context.Context, spec TransformSpec) error
	// StartStream 启动到stdout的流式转换，由调用方Wait/Kill
	StartStream(ctx context.Context, spec TransformSpec) (Process, error)
}

// FFmpegEngine 基于ffmpeg/ffprobe子进程实现Engine
type FFmpegEngine struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegEngine 创建ffmpeg引擎适配器
func NewFFmpegEngine(ffmpegPath, ffprobePath string) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegEngine{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Probe 用ffprobe检查文件结构
func (e *FFmpegEngine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// ffprobe能跑但解不开容器：按不可解码处理，不算引擎错误
		logger.Debug("ffprobe解码失败",
			logger.String("path", path),
			logger.String("stderr", stderr.String()))
		return &ProbeResult{}, nil
	}

	var probeData struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("unmarshal ffprobe output for %s: %w", path, err)
	}

	result := &ProbeResult{Decodable: true}
	if len(probeData.Streams) > 0 {
		result.HasAudioStream = true
		result.CodecName = probeData.Streams[0].CodecName
	}
	if probeData.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}

	return result, nil
}

// buildArgs 把TransformSpec翻译为ffmpeg参数
func (e *FFmpegEngine) buildArgs(spec TransformSpec) []string {
	args := []string{"-hide_banner", "-v", "error", "-nostdin"}

	if spec.ConcatManifest != "" {
		// -safe 0：清单里是绝对路径
		args = append(args, "-f", "concat", "-safe", "0", "-i", spec.ConcatManifest)
	} else {
		for _, input := range spec.Inputs {
			args = append(args, "-i", input)
		}
	}

	if spec.Complex != nil {
		args = append(args, "-filter_complex", spec.Complex.String())
		args = append(args, "-map", "["+spec.Complex.OutputLabel()+"]")
	} else if spec.Chain != nil {
		args = append(args, "-af", spec.Chain.String())
	}

	args = append(args,
		"-c:a", spec.Output.Codec,
		"-b:a", spec.Output.Bitrate,
		"-ar", strconv.Itoa(spec.Output.SampleRate),
		"-ac", strconv.Itoa(spec.Output.Channels),
		"-f", spec.Output.Format,
	)

	if spec.OutputPath != "" {
		args = append(args, "-y", spec.OutputPath)
	} else {
		args = append(args, "pipe:1")
	}

	return args
}

// Transcode 执行到文件的转换
func (e *FFmpegEngine) Transcode(ctx context.Context, spec TransformSpec) error {
	args := e.buildArgs(spec)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行ffmpeg转码", logger.String("args", fmt.Sprint(args)))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg execution failed: %w\nFFmpeg Error: %s", err, stderr.String())
	}
	return nil
}

// ffmpegProcess 一个正在运行的流式ffmpeg进程
type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func (p *ffmpegProcess) Output() io.Reader {
	return p.stdout
}

func (p *ffmpegProcess) Wait() error {
	err := p.cmd.Wait()
	if err != nil {
		return fmt.Errorf("ffmpeg exited: %w\nFFmpeg Error: %s", err, p.stderr.String())
	}
	return nil
}

func (p *ffmpegProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// StartStream 启动到stdout的流式转换
func (e *FFmpegEngine) StartStream(ctx context.Context, spec TransformSpec) (Process, error) {
	if spec.OutputPath != "" {
		return nil, fmt.Errorf("StartStream requires pipe output, got path %q", spec.OutputPath)
	}
	args := e.buildArgs(spec)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	logger.Debug("启动ffmpeg流式转码", logger.String("args", fmt.Sprint(args)))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegProcess{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

var _ Engine = (*FFmpegEngine)(nil)
