package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-story-server/internal/imagegen"
	"social-story-server/internal/models"
	"social-story-server/internal/repository"
	"social-story-server/internal/storage"
)

// AssetGenerator по визуальному плану готовит переиспользуемые ассеты батча:
// фоны окружений и портреты второстепенных персонажей.
type AssetGenerator interface {
	GenerateAssets(ctx context.Context, plan *models.VisualPlan, student *models.Student) *models.GeneratedAssets
}

type assetGenerator struct {
	imageClient imagegen.Client
	imageStore  storage.ImageStore
	studentRepo repository.StudentRepository
	logger      *zap.Logger
}

var _ AssetGenerator = (*assetGenerator)(nil)

// NewAssetGenerator создает генератор ассетов.
func NewAssetGenerator(
	imageClient imagegen.Client,
	imageStore storage.ImageStore,
	studentRepo repository.StudentRepository,
	logger *zap.Logger,
) AssetGenerator {
	return &assetGenerator{
		imageClient: imageClient,
		imageStore:  imageStore,
		studentRepo: studentRepo,
		logger:      logger.Named("AssetGenerator"),
	}
}

// assetResult - результат генерации одного ассета.
type assetResult struct {
	name string
	url  string
	err  error
}

// GenerateAssets выполняет две фазы: фоны и портреты. Все генерации внутри
// фазы идут конкурентно без ограничения - количество ассетов мало и ограничено
// длиной истории. Любой одиночный сбой просто не попадает в итоговые карты.
func (g *assetGenerator) GenerateAssets(ctx context.Context, plan *models.VisualPlan, student *models.Student) *models.GeneratedAssets {
	assets := &models.GeneratedAssets{
		Backgrounds: make(map[string]string),
		Characters:  make(map[string]string),
	}
	if plan.IsEmpty() {
		return assets
	}

	g.generateBackgrounds(ctx, plan.Environments, assets)
	g.generateCharacters(ctx, plan.Characters, student, assets)

	return assets
}

func (g *assetGenerator) generateBackgrounds(ctx context.Context, environments []string, assets *models.GeneratedAssets) {
	if len(environments) == 0 {
		return
	}

	results := make(chan assetResult, len(environments))
	var wg sync.WaitGroup

	for _, env := range environments {
		wg.Add(1)
		go func(env string) {
			defer wg.Done()
			url, err := g.generateAndStore(ctx, backgroundPrompt(env), nil, "bg")
			results <- assetResult{name: env, url: url, err: err}
		}(env)
	}

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			g.logger.Warn("Background generation failed, omitting from assets",
				zap.String("environment", res.name), zap.Error(res.err))
			continue
		}
		assets.Backgrounds[res.name] = res.url
	}
	g.logger.Info("Backgrounds generated",
		zap.Int("requested", len(environments)),
		zap.Int("succeeded", len(assets.Backgrounds)),
	)
}

func (g *assetGenerator) generateCharacters(ctx context.Context, characters []string, student *models.Student, assets *models.GeneratedAssets) {
	if len(characters) == 0 {
		return
	}

	// Сначала кэш профиля: закэшированный персонаж не генерируется заново
	var uncached []string
	for _, name := range characters {
		if url, ok := student.CharacterImages[strings.ToLower(name)]; ok && url != "" {
			assets.Characters[name] = url
			continue
		}
		uncached = append(uncached, name)
	}
	g.logger.Debug("Character cache checked",
		zap.Int("cached", len(assets.Characters)),
		zap.Int("uncached", len(uncached)),
	)
	if len(uncached) == 0 {
		return
	}

	results := make(chan assetResult, len(uncached))
	var wg sync.WaitGroup

	for _, name := range uncached {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			prompt := characterPrompt(name, student.DisplayName)
			var refs []string
			// Родственник главного персонажа должен быть на него похож:
			// базовое изображение идет референсом с текстовой подсказкой
			if relation, ok := DetectFamilyRelation(name); ok && student.HasReferenceImage() {
				refs = []string{student.ReferenceImageURL}
				prompt += fmt.Sprintf(" This character is %s of the person in the reference image; give them a clear family resemblance.", relation)
			}

			url, err := g.generateAndStore(ctx, prompt, refs, "char")
			results <- assetResult{name: name, url: url, err: err}
		}(name)
	}

	wg.Wait()
	close(results)

	newlyGenerated := make(map[string]string)
	for res := range results {
		if res.err != nil {
			g.logger.Warn("Character generation failed, omitting from assets",
				zap.String("character", res.name), zap.Error(res.err))
			continue
		}
		assets.Characters[res.name] = res.url
		newlyGenerated[strings.ToLower(res.name)] = res.url
	}

	// Свежие портреты дописываются в кэш профиля, чтобы следующие батчи
	// этого ученика их переиспользовали. Сбой записи кэша не ломает батч.
	if len(newlyGenerated) > 0 {
		if err := g.studentRepo.MergeCharacterImages(ctx, student.ID, newlyGenerated); err != nil {
			g.logger.Warn("Failed to persist character images to profile cache",
				zap.String("studentID", student.ID.String()), zap.Error(err))
		}
	}

	g.logger.Info("Characters generated",
		zap.Int("requested", len(uncached)),
		zap.Int("succeeded", len(newlyGenerated)),
	)
}

func (g *assetGenerator) generateAndStore(ctx context.Context, prompt string, refs []string, prefix string) (string, error) {
	data, err := g.imageClient.GenerateImage(ctx, prompt, refs)
	if err != nil {
		return "", err
	}
	fileName := fmt.Sprintf("%s_%s.jpg", prefix, uuid.NewString())
	return g.imageStore.SaveImage(ctx, fileName, data)
}

func backgroundPrompt(environment string) string {
	return fmt.Sprintf("A warm, friendly illustrated background of %s. "+
		"Empty scene with no people or characters. No text or captions in the image.", environment)
}

func characterPrompt(characterName, mainCharacterName string) string {
	return fmt.Sprintf("A friendly illustrated portrait of %s, a character from a social story about %s. "+
		"Neutral background, full upper body visible. No text or captions in the image.",
		characterName, mainCharacterName)
}

// familyRelations - ключевые слова в имени персонажа, означающие родственную
// связь с главным персонажем. Порядок важен: более специфичные слова
// (grandmother) должны проверяться раньше общих (mother).
var familyRelations = []struct {
	keyword string
	label   string
}{
	{"grandmother", "the grandmother"},
	{"grandma", "the grandmother"},
	{"grandfather", "the grandfather"},
	{"grandpa", "the grandfather"},
	{"mother", "the mother"},
	{"mom", "the mother"},
	{"father", "the father"},
	{"dad", "the father"},
	{"sister", "the sister"},
	{"brother", "the brother"},
	{"aunt", "the aunt"},
	{"uncle", "the uncle"},
	{"cousin", "the cousin"},
	{"parent", "a parent"},
	{"sibling", "a sibling"},
}

// DetectFamilyRelation распознает родственную связь по имени персонажа.
func DetectFamilyRelation(characterName string) (string, bool) {
	lowered := strings.ToLower(characterName)
	for _, rel := range familyRelations {
		if strings.Contains(lowered, rel.keyword) {
			return rel.label, true
		}
	}
	return "", false
}
