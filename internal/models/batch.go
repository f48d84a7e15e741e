package models

import "time"

// SceneEntry - одна сцена батча. Создается как заглушка при создании батча
// и ровно один раз переводится в терминальное состояние (completed=true).
type SceneEntry struct {
	ID        int    `json:"id"` // 1-based позиция сцены в истории
	Text      string `json:"text"`
	Image     string `json:"image"` // URL или пустая строка, пока сцена не готова
	Error     bool   `json:"error"`
	Completed bool   `json:"completed"`
}

// ScenePatch - частичное обновление сцены. Nil-поля не трогают текущее значение.
type ScenePatch struct {
	Image     *string `json:"image,omitempty"`
	Error     *bool   `json:"error,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// VisualPlan - результат анализа текста истории: окружения, второстепенные
// персонажи и карта сцена->персонажи. Главный персонаж сюда не входит.
type VisualPlan struct {
	Environments    []string         `json:"environments"`
	Characters      []string         `json:"characters"`
	SceneCharacters map[int][]string `json:"sceneCharacterMap"`
}

// IsEmpty сообщает, что планировщик не нашел (или не смог найти) общих ассетов.
func (p *VisualPlan) IsEmpty() bool {
	return p == nil || (len(p.Environments) == 0 && len(p.Characters) == 0)
}

// GeneratedAssets - карты "окружение -> URL" и "персонаж -> URL",
// заполняются один раз фазой генерации ассетов.
type GeneratedAssets struct {
	Backgrounds map[string]string `json:"backgrounds"`
	Characters  map[string]string `json:"characters"`
}

// BatchRecord - запись о прогрессе одного батча в хранилище прогресса.
// Писатель - только оркестратор; эндпоинт опроса ее лишь читает.
type BatchRecord struct {
	BatchID         string           `json:"batchId"`
	Scenes          []SceneEntry     `json:"scenes"`
	TotalCount      int              `json:"totalCount"`
	CompletedCount  int              `json:"completedCount"`
	Completed       bool             `json:"completed"`
	VisualPlan      *VisualPlan      `json:"visualPlan,omitempty"`
	GeneratedAssets *GeneratedAssets `json:"generatedAssets,omitempty"`
	StartTime       time.Time        `json:"startTime"`
}

// NewBatchRecord создает запись с заглушками сцен. Длина Scenes после этого
// никогда не меняется.
func NewBatchRecord(batchID string, sceneTexts []string) *BatchRecord {
	scenes := make([]SceneEntry, len(sceneTexts))
	for i, text := range sceneTexts {
		scenes[i] = SceneEntry{
			ID:   i + 1,
			Text: text,
		}
	}
	return &BatchRecord{
		BatchID:    batchID,
		Scenes:     scenes,
		TotalCount: len(scenes),
		StartTime:  time.Now().UTC(),
	}
}

// ApplyScenePatch вносит частичное обновление в сцену по индексу и пересчитывает
// агрегаты. CompletedCount всегда пересчитывается как количество завершенных
// сцен, а не инкрементируется - иначе конкурентные обновления разных сцен
// могли бы накопить расхождение. Флаг Completed сцены монотонен: обратно в
// false его сбросить нельзя.
func (r *BatchRecord) ApplyScenePatch(sceneIndex int, patch ScenePatch) bool {
	if sceneIndex < 0 || sceneIndex >= len(r.Scenes) {
		return false
	}
	scene := &r.Scenes[sceneIndex]
	if patch.Image != nil {
		scene.Image = *patch.Image
	}
	if patch.Error != nil {
		scene.Error = *patch.Error
	}
	if patch.Completed != nil && *patch.Completed {
		scene.Completed = true
	}
	r.RecomputeCompletion()
	return true
}

// RecomputeCompletion пересчитывает CompletedCount и итоговый флаг Completed.
func (r *BatchRecord) RecomputeCompletion() {
	count := 0
	for i := range r.Scenes {
		if r.Scenes[i].Completed {
			count++
		}
	}
	r.CompletedCount = count
	r.Completed = r.TotalCount > 0 && count >= r.TotalCount
}

// Progress возвращает процент завершения для ответа эндпоинта опроса.
func (r *BatchRecord) Progress() int {
	if r.TotalCount == 0 {
		return 0
	}
	return int(float64(r.CompletedCount)/float64(r.TotalCount)*100 + 0.5)
}
