package filewatcher

import (
	"path/filepath"
	"strings"

	"video-forge/app/logger"
	"video-forge/app/utils/pathhelper"

	"github.com/fsnotify/fsnotify"
)

// ArtifactHandler 制品文件丢失时的回调
type ArtifactHandler interface {
	HandleArtifactMissing(taskID, path string)
}

// Watcher 监控输出目录，制品文件被外部删除或移走时通知任务服务
// 清掉本地路径后，补救下载才能重新触发
type Watcher struct {
	dir     string
	handler ArtifactHandler
	log     *logger.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New 创建输出目录监控器
func New(dir string, handler ArtifactHandler, log *logger.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start 开始监控
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}

	go w.loop()
	w.log.Infof("输出目录监控已启动: %s", w.dir)
	return nil
}

// Stop 停止监控
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".mp4") {
				continue
			}

			taskID := pathhelper.TaskIDFromFileName(name)
			if taskID == "" {
				continue
			}
			w.handler.HandleArtifactMissing(taskID, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("目录监控错误: %v", err)
		}
	}
}
