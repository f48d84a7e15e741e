package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONObject - в ответе модели не нашлось валидного JSON-объекта.
var ErrNoJSONObject = errors.New("no JSON object found in model response")

// Модели иногда возвращают ключи вида $contains без кавычек - это ломает
// encoding/json. Приводим их к валидному виду перед разбором.
var bareDollarKeyRe = regexp.MustCompile(`([{,]\s*)(\$[A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// ExtractJSONObject достает первый сбалансированный JSON-объект из свободного
// текста ответа модели. Ответ может быть обернут в прозу или code-fence,
// содержать «голые» $-ключи - все это нормализуется. Функция никогда не
// паникует; если объект извлечь нельзя, возвращается ErrNoJSONObject, и
// вызывающий подставляет пустую структуру по умолчанию.
func ExtractJSONObject(responseText string) (string, error) {
	text := stripCodeFences(responseText)

	jsonStart := strings.Index(text, "{")
	if jsonStart == -1 {
		return "", fmt.Errorf("%w: no opening brace", ErrNoJSONObject)
	}

	candidate := text[jsonStart:]

	// Ищем соответствующую закрывающую скобку, учитывая строки и экранирование.
	braceLevel := 0
	jsonEnd := -1
	inString := false
	var prevChar rune
	for i, r := range candidate {
		switch r {
		case '"':
			if prevChar != '\\' {
				inString = !inString
			}
		case '{':
			if !inString {
				braceLevel++
			}
		case '}':
			if !inString {
				braceLevel--
				if braceLevel == 0 {
					jsonEnd = i + 1
				}
				if braceLevel < 0 {
					return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSONObject)
				}
			}
		}
		if jsonEnd != -1 {
			break
		}
		// Два обратных слеша подряд не экранируют следующий символ
		if prevChar == '\\' && r == '\\' {
			prevChar = 0
		} else {
			prevChar = r
		}
	}

	if jsonEnd == -1 || braceLevel != 0 {
		return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSONObject)
	}

	jsonPart := normalizeBareKeys(candidate[:jsonEnd])

	// Проверяем валидность перед возвратом
	var probe map[string]interface{}
	if err := json.Unmarshal([]byte(jsonPart), &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoJSONObject, err)
	}

	return jsonPart, nil
}

// ParseJSONInto извлекает JSON-объект из текста ответа и анмаршалит его в dst.
func ParseJSONInto(responseText string, dst interface{}) error {
	jsonPart, err := ExtractJSONObject(responseText)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonPart), dst); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	return nil
}

// stripCodeFences убирает markdown-ограждения ```json ... ``` вокруг ответа.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.ReplaceAll(trimmed, "```json", "```")
	trimmed = strings.ReplaceAll(trimmed, "```JSON", "```")
	parts := strings.Split(trimmed, "```")
	// Берем самый длинный фрагмент с открывающей скобкой - в нем и живет объект
	best := ""
	for _, part := range parts {
		if strings.Contains(part, "{") && len(part) > len(best) {
			best = part
		}
	}
	if best == "" {
		return trimmed
	}
	return strings.TrimSpace(best)
}

// normalizeBareKeys заключает в кавычки $-ключи без кавычек.
func normalizeBareKeys(jsonText string) string {
	return bareDollarKeyRe.ReplaceAllString(jsonText, `$1"$2"$3`)
}
