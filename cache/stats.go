package cache

import (
	"context"
	"strconv"
	"time"

	"echowall/logger"
)

// 统计键。计数只是观测用途，绝不参与播放决策；
// 片段的有效性永远在请求时重新探测，这里不缓存探测结果。
const (
	keyUploadsTotal   = "echowall:stats:uploads_total"
	keyUploadRejects  = "echowall:stats:upload_rejects_total"
	keyPlaysPrefix    = "echowall:stats:plays:" // 后接策略名
	keyResetsTotal    = "echowall:stats:resets_total"
	keyLastUploadUnix = "echowall:stats:last_upload_unix"
)

const statsTimeout = 3 * time.Second

// Stats 统计快照
type Stats struct {
	UploadsTotal  int64            `json:"uploadsTotal"`
	UploadRejects int64            `json:"uploadRejectsTotal"`
	Plays         map[string]int64 `json:"plays"`
	ResetsTotal   int64            `json:"resetsTotal"`
	LastUploadAt  *time.Time       `json:"lastUploadAt,omitempty"`
}

func incr(key string) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if err := RedisClient.Incr(ctx, key).Err(); err != nil {
		logger.Debug("统计计数失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// IncrUploads 记录一次成功上传
func IncrUploads() {
	incr(keyUploadsTotal)
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	RedisClient.Set(ctx, keyLastUploadUnix, time.Now().Unix(), 0)
}

// IncrUploadRejects 记录一次被拒绝的上传（空录音、引擎失败）
func IncrUploadRejects() {
	incr(keyUploadRejects)
}

// IncrPlays 记录一次按strategy的播放
func IncrPlays(strategy string) {
	incr(keyPlaysPrefix + strategy)
}

// IncrResets 记录一次清空操作
func IncrResets() {
	incr(keyResetsTotal)
}

// Snapshot 读取统计快照，Redis未配置时返回全零
func Snapshot(ctx context.Context, strategies []string) (*Stats, error) {
	stats := &Stats{Plays: make(map[string]int64, len(strategies))}
	for _, s := range strategies {
		stats.Plays[s] = 0
	}
	if RedisClient == nil {
		return stats, nil
	}

	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	getInt := func(key string) int64 {
		val, err := RedisClient.Get(ctx, key).Result()
		if err != nil {
			return 0
		}
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	}

	stats.UploadsTotal = getInt(keyUploadsTotal)
	stats.UploadRejects = getInt(keyUploadRejects)
	stats.ResetsTotal = getInt(keyResetsTotal)
	for _, s := range strategies {
		stats.Plays[s] = getInt(keyPlaysPrefix + s)
	}
	if unix := getInt(keyLastUploadUnix); unix > 0 {
		t := time.Unix(unix, 0)
		stats.LastUploadAt = &t
	}

	return stats, nil
}
