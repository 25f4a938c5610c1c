package store

import (
	"testing"
	"time"

	"video-forge/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testStore(t *testing.T) *TaskStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.VideoTask{}))
	return NewTaskStore(db)
}

func TestCreateAndGet(t *testing.T) {
	s := testStore(t)

	task := &model.VideoTask{
		TaskID: "t1",
		Prompt: "一只猫在弹钢琴",
		Status: model.TaskStatusProcessing,
	}
	require.NoError(t, s.Create(task))

	// 时间戳自动补齐
	assert.False(t, task.CreateTime.IsZero())
	assert.False(t, task.UpdateTime.IsZero())

	got, err := s.Get("t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "一只猫在弹钢琴", got.Prompt)
	assert.Equal(t, model.TaskStatusProcessing, got.Status)
}

func TestCreateRequiresTaskID(t *testing.T) {
	s := testStore(t)
	assert.Error(t, s.Create(&model.VideoTask{}))
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := testStore(t)

	got, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdate(t *testing.T) {
	s := testStore(t)

	task := &model.VideoTask{TaskID: "t1", Status: model.TaskStatusProcessing}
	require.NoError(t, s.Create(task))

	now := time.Now()
	task.Status = model.TaskStatusCompleted
	task.VideoURL = "https://cdn.example.com/v.mp4"
	task.CompleteTime = &now
	require.NoError(t, s.Update(task))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, "https://cdn.example.com/v.mp4", got.VideoURL)
	assert.NotNil(t, got.CompleteTime)

	// 清零字段也要写回（整条更新语义）
	got.ErrorMessage = ""
	got.CompleteTime = nil
	got.Status = model.TaskStatusProcessing
	require.NoError(t, s.Update(got))

	got, err = s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusProcessing, got.Status)
	assert.Nil(t, got.CompleteTime)
}

func TestUpdateMissingTask(t *testing.T) {
	s := testStore(t)
	err := s.Update(&model.VideoTask{TaskID: "ghost", Status: model.TaskStatusFailed})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListAllOrdering(t *testing.T) {
	s := testStore(t)

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Create(&model.VideoTask{
			TaskID:     id,
			Status:     model.TaskStatusProcessing,
			CreateTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tasks, err := s.ListAll()
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "new", tasks[0].TaskID)
	assert.Equal(t, "old", tasks[2].TaskID)
}

func TestListPending(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Create(&model.VideoTask{TaskID: "p1", Status: model.TaskStatusPending}))
	require.NoError(t, s.Create(&model.VideoTask{TaskID: "p2", Status: model.TaskStatusProcessing}))
	require.NoError(t, s.Create(&model.VideoTask{TaskID: "c1", Status: model.TaskStatusCompleted}))
	require.NoError(t, s.Create(&model.VideoTask{TaskID: "f1", Status: model.TaskStatusFailed}))

	tasks, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	ids := []string{tasks[0].TaskID, tasks[1].TaskID}
	assert.Contains(t, ids, "p1")
	assert.Contains(t, ids, "p2")
}

func TestListFailed(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Create(&model.VideoTask{TaskID: "f1", Status: model.TaskStatusFailed}))
	require.NoError(t, s.Create(&model.VideoTask{TaskID: "c1", Status: model.TaskStatusCompleted}))

	tasks, err := s.ListFailed()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "f1", tasks[0].TaskID)
}

func TestDelete(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Create(&model.VideoTask{TaskID: "t1", Status: model.TaskStatusCompleted}))
	require.NoError(t, s.Delete("t1"))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.Delete("t1"), ErrTaskNotFound)
}
