// Package story содержит разбиение текста истории на сцены.
//
// Разбиение обязано быть единым для планировщика, генератора ассетов и
// генератора сцен: один и тот же разделитель, одинаковая обрезка пробелов и
// фильтрация пустых сегментов. Иначе карта "сцена -> персонажи" разъедется
// с реальными индексами сцен.
package story

import "strings"

// SplitScenes разбивает текст истории на сцены по пустой строке (абзацный
// разделитель). Переводы строк Windows нормализуются, лишние пустые строки
// между абзацами схлопываются, каждая сцена обрезается, пустые отбрасываются.
func SplitScenes(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(normalized, "\n\n")

	scenes := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		scenes = append(scenes, trimmed)
	}
	return scenes
}

// JoinScenes собирает сцены обратно в текст истории тем же разделителем,
// что использует SplitScenes. SplitScenes(JoinScenes(s)) == s для уже
// нормализованных сцен.
func JoinScenes(scenes []string) string {
	return strings.Join(scenes, "\n\n")
}
