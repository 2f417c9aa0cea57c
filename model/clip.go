package model

import "time"

// Clip represents one immutable, published audio recording on the wall.
// A clip's identity is derived from its creation timestamp; the file name on
// disk is "<unix-millis>.mp3" and doubles as the ordering key.
type Clip struct {
	ID        string    `json:"id"`
	Path      string    `json:"-"` // absolute path inside the clip store, not exposed
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// OrderPolicy 播放列表排序策略
type OrderPolicy string

const (
	// OrderChronological 按上传时间从旧到新排列
	OrderChronological OrderPolicy = "chronological"
	// OrderAnchoredShuffle 最新片段固定在首位，其余随机排列
	OrderAnchoredShuffle OrderPolicy = "special"
)

// CompositionStrategy 多片段合成为单流的策略
type CompositionStrategy string

const (
	// StrategyConcat 顺序拼接，按列表顺序依次播放
	StrategyConcat CompositionStrategy = "concat"
	// StrategyMix 同时混音，输出时长等于最长输入。
	// 每路输入都要解码混叠，资源消耗明显高于拼接；
	// 负载高时应降级为 concat。
	StrategyMix CompositionStrategy = "mix"
)
