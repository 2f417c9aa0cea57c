package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// WriteConcatManifest 为concat解复用器生成输入清单文件，返回清单路径。
// 路径中的单引号按ffmpeg规则转义，不可信文件名无法破坏清单格式。
// 清单属于一次合成任务，任务结束时必须删除。
func WriteConcatManifest(dir string, paths []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(escapeConcatPath(p))
		b.WriteString("'\n")
	}

	manifestPath := filepath.Join(dir, "concat-"+uuid.NewString()+".txt")
	if err := os.WriteFile(manifestPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	return manifestPath, nil
}

// escapeConcatPath 转义清单里单引号包裹的路径。
// 单引号串里不能出现单引号本身，标准写法是 '\''（闭引号、转义引号、重开引号）。
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
