package models

import "errors"

// Общие сентинельные ошибки сервиса. Обработчики HTTP сопоставляют их
// со статус-кодами в одном месте.
var (
	// ErrNotFound - запись (батч, ученик) не найдена или истекла.
	ErrNotFound = errors.New("not found")
	// ErrValidation - некорректные входные данные запроса.
	ErrValidation = errors.New("validation error")
	// ErrStudentImageMissing - у ученика еще нет базового референсного изображения.
	ErrStudentImageMissing = errors.New("student has no reference image")
	// ErrImageGenerationFailed - генерация изображения не удалась или вернула пустой результат.
	ErrImageGenerationFailed = errors.New("image generation failed")
	// ErrImageSaveFailed - сохранение сгенерированного файла не удалось.
	ErrImageSaveFailed = errors.New("image save failed")
)
