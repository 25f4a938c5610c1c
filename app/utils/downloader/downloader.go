package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Config 下载配置
type Config struct {
	UserAgent string        // User-Agent
	Timeout   time.Duration // 超时时间
	TempDir   string        // 临时文件目录，空则使用系统临时目录
}

// DefaultConfig 默认下载配置
func DefaultConfig() *Config {
	return &Config{
		UserAgent: "video-forge/1.0",
		Timeout:   time.Minute * 30,
	}
}

// Result 下载结果
type Result struct {
	Path     string        // 临时文件路径
	Size     int64         // 下载的文件大小
	Duration time.Duration // 下载耗时
}

// DownloadToTemp 将 URL 内容下载到临时文件并返回其路径
// 始终先落到临时位置，最终位置的搬移由调用方负责
func DownloadToTemp(url string, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity") // 禁用压缩，避免 Content-Length 不匹配

	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("重定向次数过多")
			}
			req.Header.Set("User-Agent", config.UserAgent)
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTP请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(bodyBytes))
	}

	file, err := os.CreateTemp(config.TempDir, "video-forge-*.mp4.tmp")
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	tempPath := file.Name()

	startTime := time.Now()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("写入文件内容失败: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("刷新文件到磁盘失败: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("关闭文件失败: %w", err)
	}

	// 验证文件大小（如果服务器提供了Content-Length）
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tempPath)
		return nil, fmt.Errorf("下载不完整: 期望 %d bytes, 实际 %d bytes", resp.ContentLength, written)
	}

	if written == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("下载的文件为空")
	}

	return &Result{
		Path:     tempPath,
		Size:     written,
		Duration: time.Since(startTime),
	}, nil
}
