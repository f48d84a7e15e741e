package models

import (
	"time"

	"github.com/google/uuid"
)

// Student - профиль ученика. Кэш изображений персонажей (characterImages)
// принадлежит профилю и переживает любой отдельный батч: ключи - имена
// персонажей в нижнем регистре, значения - URL сохраненных портретов.
type Student struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	DisplayName       string            `json:"displayName" db:"display_name"`
	ReferenceImageURL string            `json:"referenceImageUrl" db:"reference_image_url"`
	CharacterImages   map[string]string `json:"characterImages" db:"character_images"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

// HasReferenceImage сообщает, загружено ли базовое референсное изображение.
// Без него батч создать нельзя (главный персонаж не из чего собирается).
func (s *Student) HasReferenceImage() bool {
	return s != nil && s.ReferenceImageURL != ""
}
