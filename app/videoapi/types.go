package videoapi

import (
	"errors"
	"fmt"

	"video-forge/app/model"
)

// ErrNoTaskID 提交响应中不包含可识别的任务ID
var ErrNoTaskID = errors.New("未获取到 Task ID")

// APIError 远程接口返回了非成功状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("远程接口错误，状态码: %d, 响应: %s", e.StatusCode, e.Body)
}

// DownloadError 制品下载失败
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("下载失败: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// PollState 单次轮询的结果类别
type PollState int

const (
	PollInProgress PollState = iota // 排队中或生成中
	PollSucceeded                   // 生成成功
	PollFailed                      // 远端报告失败
	PollUnknown                     // 无法识别的状态字符串
)

// PollResult 单次轮询的结果，状态与其携带的数据绑定在一起，
// 不通过错误通道传递"仍在处理中"之类的哨兵值
type PollResult struct {
	State     PollState
	VideoURL  string // State == PollSucceeded 时有效
	Reason    string // State == PollFailed 时有效
	RawStatus string // 远端返回的原始状态字符串
	Progress  int    // 远端报告的进度百分比，仅供展示
}

// Terminal 是否为终态结果
func (r PollResult) Terminal() bool {
	return r.State == PollSucceeded || r.State == PollFailed
}

// GenerateParams 视频生成请求参数
type GenerateParams struct {
	Width       int
	Height      int
	Resolution  string
	AspectRatio string
	Duration    int // API 只接受 5 或 10
	CameraFixed bool
	Seed        int
	ImagePath   string // 图生视频的首帧图片，文生视频留空
	Extra       []model.ExtraParam
}

// DefaultParams 默认生成参数
func DefaultParams() *GenerateParams {
	return &GenerateParams{
		Width:       1280,
		Height:      720,
		Resolution:  "1080p",
		AspectRatio: "16:9",
		Duration:    5,
		CameraFixed: false,
		Seed:        123,
	}
}

// 远端状态字符串
// 线上接口返回 TASK_STATUS_SUCCEED，新版文档写作 TASK_STATUS_SUCCEEDED，两者都接受
const (
	statusQueued     = "TASK_STATUS_QUEUED"
	statusProcessing = "TASK_STATUS_PROCESSING"
	statusSucceed    = "TASK_STATUS_SUCCEED"
	statusSucceeded  = "TASK_STATUS_SUCCEEDED"
	statusFailed     = "TASK_STATUS_FAILED"
)
