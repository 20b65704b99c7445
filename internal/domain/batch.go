package domain

import "fmt"

// BatchRange — полуинтервал [Lo, Hi) индексов входной последовательности.
//
// Batch — единица учёта памяти и изоляции отказов: владеет shared-буферами
// своих инстансов на всё время жизни.
type BatchRange struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Len возвращает количество инстансов в batch'е.
func (b BatchRange) Len() int {
	return b.Hi - b.Lo
}

// Contains проверяет, принадлежит ли индекс batch'у.
func (b BatchRange) Contains(index int) bool {
	return index >= b.Lo && index < b.Hi
}

// String возвращает "[lo,hi)".
func (b BatchRange) String() string {
	return fmt.Sprintf("[%d,%d)", b.Lo, b.Hi)
}
