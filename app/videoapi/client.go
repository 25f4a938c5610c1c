package videoapi

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"video-forge/app/logger"
	"video-forge/app/utils/downloader"

	"resty.dev/v3"
)

// Options 客户端配置，通过 Reconfigure 整体替换，不依赖全局可变状态
type Options struct {
	SubmitURL string
	QueryURL  string
	Timeout   time.Duration
}

// Client 远程视频生成接口客户端，无状态：不持有任何任务数据
type Client struct {
	mu     sync.RWMutex
	opts   Options
	client *resty.Client
	log    *logger.Logger
}

// New 创建客户端
func New(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)

	return &Client{
		opts:   opts,
		client: client,
		log:    log,
	}
}

// Reconfigure 替换接口地址，已发出的请求不受影响
func (c *Client) Reconfigure(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opts.Timeout <= 0 {
		opts.Timeout = c.opts.Timeout
	}
	c.opts = opts
	c.log.Infof("接口地址已更新: submit=%s query=%s", opts.SubmitURL, opts.QueryURL)
}

func (c *Client) urls() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.SubmitURL, c.opts.QueryURL
}

// Submit 提交生成任务，返回远端分配的任务ID
// 响应中的任务ID可能出现在 task_id、id 或 data.id 下，按此顺序查找
func (c *Client) Submit(apiKey, prompt string, params *GenerateParams) (string, error) {
	if params == nil {
		params = DefaultParams()
	}

	submitURL, _ := c.urls()

	body := map[string]any{
		"prompt":       prompt,
		"width":        params.Width,
		"height":       params.Height,
		"resolution":   params.Resolution,
		"aspect_ratio": params.AspectRatio,
		"duration":     params.Duration, // API 只接受 5 或 10
		"camera_fixed": params.CameraFixed,
		"seed":         params.Seed,
	}
	for _, p := range params.Extra {
		body[p.Key] = p.Value
	}

	// 图生视频：首帧图片压缩后随请求内联提交
	if params.ImagePath != "" {
		encoded, err := encodeFirstFrame(params.ImagePath)
		if err != nil {
			return "", fmt.Errorf("处理首帧图片失败: %w", err)
		}
		body["image"] = encoded
	}

	var response map[string]any
	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(body).
		SetResult(&response).
		Post(submitURL)
	if err != nil {
		return "", fmt.Errorf("提交请求失败: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	taskID := extractTaskID(response)
	if taskID == "" {
		c.log.Errorf("提交响应中未找到任务ID: %s", resp.String())
		return "", ErrNoTaskID
	}

	c.log.Infof("任务提交成功: TaskID=%s", taskID)
	return taskID, nil
}

// extractTaskID 按 task_id → id → data.id 的顺序提取任务ID
func extractTaskID(response map[string]any) string {
	if v, ok := response["task_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := response["id"].(string); ok && v != "" {
		return v
	}
	if data, ok := response["data"].(map[string]any); ok {
		if v, ok := data["id"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// PollOne 查询单个任务的状态
func (c *Client) PollOne(apiKey, taskID string) (PollResult, error) {
	_, queryURL := c.urls()

	var response map[string]any
	resp, err := c.client.R().
		SetHeader("Authorization", "Bearer "+apiKey).
		SetQueryParam("task_id", taskID).
		SetResult(&response).
		Get(queryURL)
	if err != nil {
		return PollResult{}, fmt.Errorf("轮询请求失败: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return PollResult{}, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return parsePollResponse(response), nil
}

// PollAll 批量查询全部任务，返回原始响应；
// 如果响应恰好描述单个任务，同时返回该任务的ID与解析结果
func (c *Client) PollAll(apiKey string) (json.RawMessage, string, *PollResult, error) {
	_, queryURL := c.urls()

	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		Get(queryURL)
	if err != nil {
		return nil, "", nil, fmt.Errorf("批量查询失败: %w", err)
	}

	raw := json.RawMessage(resp.String())

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return raw, "", nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var response map[string]any
	if err := json.Unmarshal(raw, &response); err != nil {
		return raw, "", nil, nil
	}

	taskObj, ok := response["task"].(map[string]any)
	if !ok {
		return raw, "", nil, nil
	}

	taskID, _ := taskObj["task_id"].(string)
	result := parsePollResponse(response)
	return raw, taskID, &result, nil
}

// parsePollResponse 解析查询响应，远端状态字符串大小写敏感，
// 无法识别的状态映射为 PollUnknown 而不是错误
func parsePollResponse(response map[string]any) PollResult {
	taskObj, _ := response["task"].(map[string]any)
	status, _ := taskObj["status"].(string)

	result := PollResult{RawStatus: status}
	if progress, ok := taskObj["progress_percent"].(float64); ok {
		result.Progress = int(progress)
	}

	switch status {
	case statusSucceed, statusSucceeded:
		result.State = PollSucceeded
		if videos, ok := response["videos"].([]any); ok && len(videos) > 0 {
			if videoObj, ok := videos[0].(map[string]any); ok {
				result.VideoURL, _ = videoObj["video_url"].(string)
			}
		}
	case statusFailed:
		result.State = PollFailed
		reason, _ := taskObj["reason"].(string)
		if reason == "" {
			reason = "任务失败"
		}
		result.Reason = reason
	case statusQueued, statusProcessing:
		result.State = PollInProgress
	default:
		result.State = PollUnknown
	}

	return result
}

// Download 将制品下载到传输层的临时文件，最终位置由调用方搬移
func (c *Client) Download(url string) (string, error) {
	result, err := downloader.DownloadToTemp(url, nil)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	c.log.Infof("制品下载完成: %s, 大小: %d bytes, 耗时: %.2fs",
		result.Path, result.Size, result.Duration.Seconds())
	return result.Path, nil
}
