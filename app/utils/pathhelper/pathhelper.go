package pathhelper

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// 文件名中不允许出现的字符
var invalidNamePattern = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// SanitizeFileName 规范化并清理文件名：NFC 归一化，替换非法字符，去掉首尾的点和空格
func SanitizeFileName(name string) string {
	name = norm.NFC.String(name)
	name = invalidNamePattern.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		name = "unnamed"
	}
	return name
}

// ArtifactFileName 制品文件名：taskId_时间戳.mp4
// 带时间戳避免同一任务重复下载时互相覆盖
func ArtifactFileName(taskID string, t time.Time) string {
	return fmt.Sprintf("%s_%d.mp4", SanitizeFileName(taskID), t.Unix())
}

// TaskIDFromFileName 从制品文件名中还原任务ID
func TaskIDFromFileName(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	idx := strings.LastIndex(name, "_")
	if idx <= 0 {
		return ""
	}
	return name[:idx]
}
