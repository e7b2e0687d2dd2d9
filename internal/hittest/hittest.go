// Package hittest определяет, какая область находится под курсором.
package hittest

import "github.com/AntonyGarand/bs-map-tools/internal/vec"

// Region любая область, умеющая проверять вхождение точки
type Region interface {
	Contains(p vec.Vec2Float) bool
}

// FindContainingRegion возвращает первую область в переданном порядке, содержащую точку.
// Порядок regions и есть приоритет: вызывающий код сам решает, чьи комнаты важнее.
// Отсутствие совпадения - обычный результат, а не ошибка.
// Результаты не кешируются: набор областей может меняться между вызовами.
func FindContainingRegion[R Region](p vec.Vec2Float, regions []R) (R, int, bool) {
	for i, r := range regions {
		if r.Contains(p) {
			return r, i, true
		}
	}
	var zero R
	return zero, -1, false
}

// FindAll возвращает индексы всех областей, содержащих точку, в порядке приоритета
func FindAll[R Region](p vec.Vec2Float, regions []R) []int {
	var hits []int
	for i, r := range regions {
		if r.Contains(p) {
			hits = append(hits, i)
		}
	}
	return hits
}
