package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager определяет интерфейс для управления фоновыми задачами
type Manager interface {
	SubmitTask(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error)
	GetTask(taskID uuid.UUID) (*Task, error)
	CancelTask(taskID uuid.UUID) error
	CleanupTasks(age time.Duration)
	Shutdown(ctx context.Context) error
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context, params interface{}) (interface{}, error)

// Task представляет асинхронную задачу
type Task struct {
	ID        uuid.UUID
	Status    TaskStatus
	Message   string
	Result    interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	Cancel    context.CancelFunc
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int `env:"TASK_MANAGER_MAX_TASKS" env-default:"32"`
}

// TaskManager управляет асинхронными задачами. Задачи выполняются на
// независимом контексте: отмена HTTP-запроса, породившего задачу, не
// останавливает ее выполнение.
type TaskManager struct {
	tasks    map[uuid.UUID]*Task
	mu       sync.RWMutex
	maxTasks int
	wg       sync.WaitGroup
	logger   *zap.Logger
}

var _ Manager = (*TaskManager)(nil)

// New создает новый экземпляр TaskManager
func New(cfg Config, logger *zap.Logger) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 32
	}
	return &TaskManager{
		tasks:    make(map[uuid.UUID]*Task),
		maxTasks: maxTasks,
		logger:   logger.Named("TaskManager"),
	}
}

// SubmitTask создает и запускает новую задачу. Возвращает сразу после запуска
// горутины, не дожидаясь результата.
func (tm *TaskManager) SubmitTask(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	activeTasks := 0
	for _, task := range tm.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			activeTasks++
		}
	}
	if activeTasks >= tm.maxTasks {
		return uuid.UUID{}, errors.New("maximum number of active tasks exceeded")
	}

	taskID := uuid.New()

	// Контекст задачи отвязан от контекста запроса намеренно
	taskCtx, cancel := context.WithCancel(context.Background())

	task := &Task{
		ID:        taskID,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Cancel:    cancel,
	}
	tm.tasks[taskID] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.runTask(taskCtx, task, taskFunc, params)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (tm *TaskManager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc, params interface{}) {
	tm.updateTaskStatus(task, TaskStatusRunning, "task started")

	result, err := taskFunc(ctx, params)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			tm.logger.Info("Task context cancelled", zap.String("taskID", task.ID.String()))
			tm.updateTaskStatus(task, TaskStatusCancelled, "task cancelled")
		} else {
			tm.logger.Error("Task context error", zap.String("taskID", task.ID.String()), zap.Error(ctx.Err()))
			tm.updateTaskStatus(task, TaskStatusFailed, fmt.Sprintf("context error: %v", ctx.Err()))
		}
		return
	}

	if err != nil {
		tm.logger.Error("Task failed", zap.String("taskID", task.ID.String()), zap.Error(err))
		tm.updateTaskStatus(task, TaskStatusFailed, fmt.Sprintf("error: %v", err))
		return
	}

	task.Result = result
	tm.logger.Info("Task completed", zap.String("taskID", task.ID.String()))
	tm.updateTaskStatus(task, TaskStatusCompleted, "task completed")
}

func (tm *TaskManager) updateTaskStatus(task *Task, status TaskStatus, message string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task.Status = status
	task.Message = message
	task.UpdatedAt = time.Now()
}

// GetTask возвращает информацию о задаче по ID
func (tm *TaskManager) GetTask(taskID uuid.UUID) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// CancelTask отменяет выполнение задачи
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	if task.Status != TaskStatusPending && task.Status != TaskStatusRunning {
		return fmt.Errorf("cannot cancel task in status %s", task.Status)
	}
	if task.Cancel != nil {
		task.Cancel()
	}
	task.Status = TaskStatusCancelled
	task.Message = "task cancelled by caller"
	task.UpdatedAt = time.Now()
	return nil
}

// CleanupTasks удаляет завершенные задачи старше указанного возраста
func (tm *TaskManager) CleanupTasks(age time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for id, task := range tm.tasks {
		if (task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed || task.Status == TaskStatusCancelled) &&
			now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
		}
	}
}

// Shutdown ожидает завершения всех запущенных задач либо истечения контекста
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for tasks to finish")
	}
}
