package videoapi

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// 首帧图片的最大宽度，超过则等比缩小后再提交
const maxFrameWidth = 1080

// encodeFirstFrame 读取首帧图片，必要时缩小，编码为 base64 JPEG
func encodeFirstFrame(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("读取图片失败: %w", err)
	}

	if img.Bounds().Dx() > maxFrameWidth {
		img = imaging.Resize(img, maxFrameWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("编码图片失败: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
