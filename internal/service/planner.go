package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/story"
	"social-story-server/pkg/ai"
)

// VisualPlanner анализирует текст истории и строит план визуальных ассетов:
// окружения, второстепенные персонажи и карта сцена->персонажи.
type VisualPlanner interface {
	GeneratePlan(ctx context.Context, storyText, mainCharacterName string) *models.VisualPlan
}

type visualPlanner struct {
	aiClient ai.Client
	logger   *zap.Logger
}

var _ VisualPlanner = (*visualPlanner)(nil)

// NewVisualPlanner создает планировщик визуальных ассетов.
func NewVisualPlanner(aiClient ai.Client, logger *zap.Logger) VisualPlanner {
	return &visualPlanner{
		aiClient: aiClient,
		logger:   logger.Named("VisualPlanner"),
	}
}

const plannerSystemPrompt = `You are a visual planning assistant for illustrated social stories.
You receive a story split into numbered scenes and the name of the main character.
Respond with a single JSON object and nothing else, in this exact shape:
{
  "environments": ["<distinct location or setting>", ...],
  "characters": ["<secondary character name>", ...],
  "sceneCharacterMap": {"<zero-based scene index>": ["<character name>", ...], ...}
}
Rules:
- "environments" lists every distinct location or setting mentioned in the story.
- "characters" lists every character except the main character. Never include the main character.
- "sceneCharacterMap" maps each scene index to the secondary characters appearing in that scene. Omit scenes with no secondary characters.`

// plannerResponse - сырой ответ модели. Ключи карты приходят строками.
type plannerResponse struct {
	Environments    []string            `json:"environments"`
	Characters      []string            `json:"characters"`
	SceneCharacters map[string][]string `json:"sceneCharacterMap"`
}

// GeneratePlan строит визуальный план. Никогда не возвращает ошибку: любой
// сбой модели или разбора ответа превращается в пустой план, и дальше каждая
// сцена генерируется независимо, без общих ассетов.
func (p *visualPlanner) GeneratePlan(ctx context.Context, storyText, mainCharacterName string) *models.VisualPlan {
	scenes := story.SplitScenes(storyText)
	if len(scenes) == 0 {
		return emptyPlan()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Main character: %s\n\n", mainCharacterName)
	for i, sceneText := range scenes {
		fmt.Fprintf(&sb, "Scene %d:\n%s\n\n", i, sceneText)
	}

	responseText, _, err := p.aiClient.GenerateText(ctx, plannerSystemPrompt, sb.String())
	if err != nil {
		p.logger.Warn("Visual planning failed, falling back to empty plan", zap.Error(err))
		return emptyPlan()
	}

	var raw plannerResponse
	if err := ai.ParseJSONInto(responseText, &raw); err != nil {
		p.logger.Warn("Failed to parse planner response, falling back to empty plan",
			zap.Error(err), zap.Int("response_chars", len(responseText)))
		return emptyPlan()
	}

	plan := p.buildPlan(raw, scenes, mainCharacterName)
	p.logger.Info("Visual plan built",
		zap.Int("scenes", len(scenes)),
		zap.Int("environments", len(plan.Environments)),
		zap.Int("characters", len(plan.Characters)),
	)
	return plan
}

// buildPlan нормализует ответ модели: дедуплицирует списки, выфильтровывает
// главного персонажа и достраивает карту сцена->персонажи эвристикой по
// подстроке там, где модель ее не дала.
func (p *visualPlanner) buildPlan(raw plannerResponse, scenes []string, mainCharacterName string) *models.VisualPlan {
	plan := &models.VisualPlan{
		Environments:    dedupeStrings(raw.Environments),
		Characters:      filterMainCharacter(dedupeStrings(raw.Characters), mainCharacterName),
		SceneCharacters: make(map[int][]string),
	}

	// Ответ модели переносим в карту с числовыми индексами,
	// отбрасывая мусорные ключи и главного персонажа
	for key, names := range raw.SceneCharacters {
		idx, err := parseSceneIndex(key)
		if err != nil || idx < 0 || idx >= len(scenes) {
			p.logger.Debug("Skipping invalid scene index in planner response", zap.String("key", key))
			continue
		}
		filtered := filterMainCharacter(dedupeStrings(names), mainCharacterName)
		if len(filtered) > 0 {
			plan.SceneCharacters[idx] = filtered
		}
	}

	// Эвристика по подстроке для сцен, про которые модель промолчала.
	// Предпочтение всегда у карты модели: она видит местоимения и косвенные
	// упоминания, недоступные поиску по имени.
	if len(plan.Characters) > 0 {
		for idx, sceneText := range scenes {
			if len(plan.SceneCharacters[idx]) > 0 {
				continue
			}
			if found := CharactersInText(sceneText, plan.Characters); len(found) > 0 {
				plan.SceneCharacters[idx] = found
			}
		}
	}

	return plan
}

// CharactersInText возвращает персонажей из candidates, чьи имена встречаются
// в тексте без учета регистра, в порядке candidates.
func CharactersInText(text string, candidates []string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(name)) {
			found = append(found, name)
		}
	}
	return found
}

func emptyPlan() *models.VisualPlan {
	return &models.VisualPlan{
		Environments:    []string{},
		Characters:      []string{},
		SceneCharacters: make(map[int][]string),
	}
}

func parseSceneIndex(key string) (int, error) {
	var idx int
	_, err := fmt.Sscanf(strings.TrimSpace(key), "%d", &idx)
	return idx, err
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, v)
	}
	return result
}

func filterMainCharacter(names []string, mainCharacterName string) []string {
	main := strings.ToLower(strings.TrimSpace(mainCharacterName))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if strings.ToLower(strings.TrimSpace(name)) == main {
			continue
		}
		result = append(result, name)
	}
	return result
}
