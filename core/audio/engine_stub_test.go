package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// stubEngine 记录所有调用的Engine测试替身。
// 各函数字段为nil时使用无害的默认行为。
type stubEngine struct {
	mu         sync.Mutex
	transcodes []TransformSpec
	streams    []TransformSpec

	probeFn       func(path string) (*ProbeResult, error)
	transcodeFn   func(ctx context.Context, spec TransformSpec) error
	startStreamFn func(ctx context.Context, spec TransformSpec) (Process, error)
}

func (e *stubEngine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if e.probeFn != nil {
		return e.probeFn(path)
	}
	return &ProbeResult{Decodable: true, HasAudioStream: true}, nil
}

func (e *stubEngine) Transcode(ctx context.Context, spec TransformSpec) error {
	e.mu.Lock()
	e.transcodes = append(e.transcodes, spec)
	e.mu.Unlock()
	if e.transcodeFn != nil {
		return e.transcodeFn(ctx, spec)
	}
	// 默认行为：产出一个像样大小的输出文件
	return os.WriteFile(spec.OutputPath, make([]byte, 4096), 0644)
}

func (e *stubEngine) StartStream(ctx context.Context, spec TransformSpec) (Process, error) {
	e.mu.Lock()
	e.streams = append(e.streams, spec)
	e.mu.Unlock()
	if e.startStreamFn != nil {
		return e.startStreamFn(ctx, spec)
	}
	return newStubProcess([]byte("stub audio bytes"), nil), nil
}

func (e *stubEngine) recordedTranscodes() []TransformSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TransformSpec(nil), e.transcodes...)
}

func (e *stubEngine) recordedStreams() []TransformSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TransformSpec(nil), e.streams...)
}

// stubProcess 产出固定字节后结束的流式进程替身
type stubProcess struct {
	out      io.Reader
	waitErr  error
	killed   chan struct{}
	killOnce sync.Once
}

func newStubProcess(data []byte, waitErr error) *stubProcess {
	p := &stubProcess{waitErr: waitErr, killed: make(chan struct{})}
	p.out = &stubOutput{data: data, killed: p.killed}
	return p
}

func (p *stubProcess) Output() io.Reader { return p.out }

func (p *stubProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *stubProcess) wasKilled() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

func (p *stubProcess) Wait() error {
	if p.wasKilled() {
		return fmt.Errorf("signal: killed")
	}
	return p.waitErr
}

type stubOutput struct {
	data   []byte
	pos    int
	killed <-chan struct{}
}

func (o *stubOutput) Read(p []byte) (int, error) {
	if o.pos >= len(o.data) {
		return 0, io.EOF
	}
	n := copy(p, o.data[o.pos:])
	o.pos += n
	return n, nil
}

// hangingProcess 先产出一个分片，然后阻塞直到被Kill，
// 用来模拟客户端中途断开时仍在运行的转码进程
type hangingProcess struct {
	first    []byte
	sent     bool
	killed   chan struct{}
	killOnce sync.Once
}

func newHangingProcess(first []byte) *hangingProcess {
	return &hangingProcess{first: first, killed: make(chan struct{})}
}

func (p *hangingProcess) Output() io.Reader { return p }

func (p *hangingProcess) Read(buf []byte) (int, error) {
	if !p.sent {
		p.sent = true
		n := copy(buf, p.first)
		return n, nil
	}
	<-p.killed
	return 0, io.EOF
}

func (p *hangingProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *hangingProcess) wasKilled() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

func (p *hangingProcess) Wait() error {
	if p.wasKilled() {
		return fmt.Errorf("signal: killed")
	}
	return nil
}
