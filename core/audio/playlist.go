package audio

import (
	"math/rand"
	"sort"
	"time"

	"echowall/model"
)

// Sequence 把已校验的片段集排成合成器要消费的顺序。
//
//   - chronological: 从旧到新，线性收听者按提交顺序经历整面墙的历史
//   - special: 最新片段固定第一位，保证新贡献总是先被听到；
//     其余片段均匀随机排列，重复请求时有新鲜感。
//     最新片段不参与随机池。
//
// rng可注入以便测试复现，传nil则用时间种子。
// 0或1个片段时任何策略都退化为恒等排序。
func Sequence(clips []model.Clip, policy model.OrderPolicy, rng *rand.Rand) []model.Clip {
	ordered := make([]model.Clip, len(clips))
	copy(ordered, clips)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	if policy != model.OrderAnchoredShuffle || len(ordered) < 2 {
		return ordered
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// 最新的放第一位，剩下的Fisher-Yates打乱
	newest := ordered[len(ordered)-1]
	rest := ordered[:len(ordered)-1]
	rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	result := make([]model.Clip, 0, len(ordered))
	result = append(result, newest)
	result = append(result, rest...)
	return result
}
