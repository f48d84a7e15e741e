package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-story-server/internal/imagegen"
	"social-story-server/internal/models"
	"social-story-server/internal/storage"
)

// ContextNotes - необязательные свободные заметки об ученике, вплетаемые
// в промпт каждой сцены.
type ContextNotes struct {
	LearningPreferences string
	Challenges          string
	AdditionalNotes     string
}

// SceneRequest - запрос на генерацию иллюстрации одной сцены.
type SceneRequest struct {
	SceneIndex int
	SceneText  string
	Student    *models.Student
	Plan       *models.VisualPlan
	Assets     *models.GeneratedAssets
	Notes      ContextNotes
}

// SceneGenerator рендерит иллюстрацию одной сцены, используя базовое
// изображение главного персонажа и ассеты батча как референсы.
type SceneGenerator interface {
	GenerateScene(ctx context.Context, req SceneRequest) (string, error)
}

type sceneGenerator struct {
	imageClient imagegen.Client
	imageStore  storage.ImageStore
	logger      *zap.Logger
}

var _ SceneGenerator = (*sceneGenerator)(nil)

// NewSceneGenerator создает генератор сцен.
func NewSceneGenerator(imageClient imagegen.Client, imageStore storage.ImageStore, logger *zap.Logger) SceneGenerator {
	return &sceneGenerator{
		imageClient: imageClient,
		imageStore:  imageStore,
		logger:      logger.Named("SceneGenerator"),
	}
}

// GenerateScene собирает референсы и промпт, вызывает генерацию и сохраняет
// результат. Порядок референсов фиксирован: базовое изображение главного
// персонажа всегда первое - именно его модель берет как якорь идентичности.
func (g *sceneGenerator) GenerateScene(ctx context.Context, req SceneRequest) (string, error) {
	refs, prompt := g.assembleRequest(req)

	log := g.logger.With(
		zap.Int("sceneIndex", req.SceneIndex),
		zap.Int("referenceCount", len(refs)),
	)
	log.Debug("Generating scene illustration")

	data, err := g.imageClient.GenerateImage(ctx, prompt, refs)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("scene_%s.jpg", uuid.NewString())
	url, err := g.imageStore.SaveImage(ctx, fileName, data)
	if err != nil {
		return "", err
	}

	log.Debug("Scene illustration saved", zap.String("url", url))
	return url, nil
}

// assembleRequest строит список референсов и текст промпта для сцены.
func (g *sceneGenerator) assembleRequest(req SceneRequest) ([]string, string) {
	var prompt strings.Builder

	// 1. Базовое изображение главного персонажа, всегда первым
	refs := []string{req.Student.ReferenceImageURL}
	fmt.Fprintf(&prompt, "Illustrate the following scene from a social story about %s.\n\nScene text:\n%s\n\n",
		req.Student.DisplayName, req.SceneText)
	prompt.WriteString("The first reference image is the main character. " +
		"Reuse this exact character design unmodified: same face, hair, clothing and proportions.\n")

	// 2. Фон окружения, если сцена совпала с одним из запланированных
	environment := MatchEnvironment(req.SceneText, req.Plan.Environments)
	if environment != "" {
		if bgURL, ok := req.Assets.Backgrounds[environment]; ok && bgURL != "" {
			refs = append(refs, bgURL)
			fmt.Fprintf(&prompt, "Reference image %d is the background for %q. Reuse it as the exact setting of this scene.\n",
				len(refs), environment)
		} else {
			fmt.Fprintf(&prompt, "The scene takes place in %s.\n", environment)
		}
	} else if len(req.Plan.Environments) > 0 {
		fmt.Fprintf(&prompt, "Possible settings in this story: %s.\n", strings.Join(req.Plan.Environments, ", "))
	}

	// 3-4. Второстепенные персонажи сцены, в порядке их определения
	var withoutAsset []string
	for _, name := range g.sceneCharacters(req) {
		if charURL, ok := req.Assets.Characters[name]; ok && charURL != "" {
			refs = append(refs, charURL)
			fmt.Fprintf(&prompt, "Reference image %d is %s. This character must visually match the reference.\n",
				len(refs), name)
		} else {
			withoutAsset = append(withoutAsset, name)
		}
	}
	if len(withoutAsset) > 0 {
		fmt.Fprintf(&prompt, "Also present in the scene: %s.\n", strings.Join(withoutAsset, ", "))
	}

	// 5. Контекстные заметки и общие требования к композиции
	if req.Notes.LearningPreferences != "" {
		fmt.Fprintf(&prompt, "Learning preferences to consider: %s.\n", req.Notes.LearningPreferences)
	}
	if req.Notes.Challenges != "" {
		fmt.Fprintf(&prompt, "Challenges to consider: %s.\n", req.Notes.Challenges)
	}
	if req.Notes.AdditionalNotes != "" {
		fmt.Fprintf(&prompt, "Additional notes: %s.\n", req.Notes.AdditionalNotes)
	}
	prompt.WriteString("Do not include any text, captions or speech bubbles in the image. " +
		"Square format composition. Show the main character actively engaged in the scene's activity, not standing idle.")

	return refs, prompt.String()
}

// sceneCharacters возвращает персонажей сцены: карта плана в приоритете,
// поиск по подстроке - запасной вариант.
func (g *sceneGenerator) sceneCharacters(req SceneRequest) []string {
	if names := req.Plan.SceneCharacters[req.SceneIndex]; len(names) > 0 {
		return names
	}
	return CharactersInText(req.SceneText, req.Plan.Characters)
}

// MatchEnvironment находит окружение сцены поиском по подстроке без учета
// регистра. Первое совпадение выигрывает.
func MatchEnvironment(sceneText string, environments []string) string {
	lowered := strings.ToLower(sceneText)
	for _, env := range environments {
		if env == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(env)) {
			return env
		}
	}
	return ""
}
