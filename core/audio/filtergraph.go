package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// 滤镜描述的类型化构建器。
// 不再手拼字符串：参数值统一转义，畸形输入在构造阶段就被挡住。

// Filter 单个滤镜及其按序排列的参数
type Filter struct {
	name string
	opts []filterOpt
}

type filterOpt struct {
	key   string
	value string
}

// NewFilter 创建指定名称的滤镜
func NewFilter(name string) *Filter {
	return &Filter{name: name}
}

// Opt 追加一个键值参数
func (f *Filter) Opt(key, value string) *Filter {
	f.opts = append(f.opts, filterOpt{key: key, value: value})
	return f
}

// escapeFilterValue 转义滤镜参数值中的特殊字符。
// ffmpeg滤镜语法里 \ ' : , ; [ ] 都有结构含义。
func escapeFilterValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\', '\'', ':', ',', ';', '[', ']':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String 渲染为 name=k1=v1:k2=v2 形式
func (f *Filter) String() string {
	if len(f.opts) == 0 {
		return f.name
	}
	parts := make([]string, 0, len(f.opts))
	for _, o := range f.opts {
		parts = append(parts, o.key+"="+escapeFilterValue(o.value))
	}
	return f.name + "=" + strings.Join(parts, ":")
}

// Chain 逗号连接的滤镜链，用于单输入的 -af
type Chain struct {
	filters []*Filter
}

// NewChain 创建滤镜链
func NewChain(filters ...*Filter) *Chain {
	return &Chain{filters: filters}
}

// Append 在链尾追加滤镜
func (c *Chain) Append(f *Filter) *Chain {
	c.filters = append(c.filters, f)
	return c
}

// String 渲染为逗号连接的链
func (c *Chain) String() string {
	parts := make([]string, 0, len(c.filters))
	for _, f := range c.filters {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, ",")
}

// Graph 带输入输出标签的滤镜图，用于多输入的 -filter_complex
type Graph struct {
	chains []labeledChain
	output string
}

type labeledChain struct {
	inputs  []string
	chain   *Chain
	outputs []string
}

// NewGraph 创建空滤镜图
func NewGraph() *Graph {
	return &Graph{}
}

// AddChain 追加一条带标签的链，inputs/outputs是不含方括号的流标签
func (g *Graph) AddChain(inputs []string, chain *Chain, outputs ...string) *Graph {
	g.chains = append(g.chains, labeledChain{inputs: inputs, chain: chain, outputs: outputs})
	if len(outputs) > 0 {
		g.output = outputs[len(outputs)-1]
	}
	return g
}

// OutputLabel 图的最终输出标签，交给 -map 使用
func (g *Graph) OutputLabel() string {
	return g.output
}

// String 渲染为分号连接的滤镜图
func (g *Graph) String() string {
	parts := make([]string, 0, len(g.chains))
	for _, lc := range g.chains {
		var b strings.Builder
		for _, in := range lc.inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(lc.chain.String())
		for _, out := range lc.outputs {
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}

// ---- 领域滤镜构造器 ----

// formatSeconds 按ffmpeg习惯渲染秒数
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}

// SilenceRemoveStart 去除开头的近静音段。
// threshold是满幅比例（0.02即2%），minRun是最短静音时长（秒）。
func SilenceRemoveStart(threshold, minRun float64) *Filter {
	return NewFilter("silenceremove").
		Opt("start_periods", "1").
		Opt("start_duration", formatSeconds(minRun)).
		Opt("start_threshold", formatSeconds(threshold))
}

// AReverse 整段倒放
func AReverse() *Filter {
	return NewFilter("areverse")
}

// TrimChain 去除首尾静音的完整链。
// 只有"去头"一个原语：去头、倒放、再去头、再倒放恢复原方向。
func TrimChain(threshold, minRun float64) *Chain {
	return NewChain(
		SilenceRemoveStart(threshold, minRun),
		AReverse(),
		SilenceRemoveStart(threshold, minRun),
		AReverse(),
	)
}

// AMix 把n路输入混叠为一路，时长取最长输入，短的隐式补静音
func AMix(inputs int) *Filter {
	return NewFilter("amix").
		Opt("inputs", strconv.Itoa(inputs)).
		Opt("duration", "longest")
}

// ACrossfade 两路输入交叉淡化衔接
func ACrossfade(seconds float64) *Filter {
	return NewFilter("acrossfade").
		Opt("d", formatSeconds(seconds))
}

// MixGraph n路输入的混音图：[0:a][1:a]...amix=inputs=n:duration=longest[out]
func MixGraph(inputs int) *Graph {
	labels := make([]string, inputs)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d:a", i)
	}
	return NewGraph().AddChain(labels, NewChain(AMix(inputs)), "out")
}

// CrossfadeGraph 母带与新片段的交叉淡化图
func CrossfadeGraph(seconds float64) *Graph {
	return NewGraph().AddChain([]string{"0:a", "1:a"}, NewChain(ACrossfade(seconds)), "out")
}
