package pathhelper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"普通名称原样保留", "task-abc123", "task-abc123"},
		{"非法字符替换为下划线", `a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"首尾的点和空格去掉", "  .name. ", "name"},
		{"控制字符替换", "a\x00b\x1fc", "a_b_c"},
		{"空名称回退", "", "unnamed"},
		{"全是非法内容回退", " .. ", "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFileName(tt.input))
		})
	}
}

func TestArtifactFileName(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.Equal(t, "abc123_1700000000.mp4", ArtifactFileName("abc123", ts))

	// 任务ID中的非法字符也会被清理
	assert.Equal(t, "a_b_1700000000.mp4", ArtifactFileName("a/b", ts))
}

func TestTaskIDFromFileName(t *testing.T) {
	assert.Equal(t, "abc123", TaskIDFromFileName("abc123_1700000000.mp4"))

	// 任务ID本身带下划线时以最后一个下划线为界
	assert.Equal(t, "task_with_underscore", TaskIDFromFileName("task_with_underscore_1700000000.mp4"))

	// 不符合命名约定的文件名无法还原
	assert.Equal(t, "", TaskIDFromFileName("noseparator.mp4"))
	assert.Equal(t, "", TaskIDFromFileName("_123.mp4"))
}

func TestArtifactFileNameRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	name := ArtifactFileName("cgt-20260828-001", ts)
	assert.Equal(t, "cgt-20260828-001", TaskIDFromFileName(name))
}
