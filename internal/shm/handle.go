package shm

import (
	"fmt"
	"path/filepath"
	"unsafe"
)

// DType — тип элемента буфера.
type DType string

const (
	// Float64 — IEEE-754 double, 8 байт.
	Float64 DType = "float64"

	// Int32 — знаковое 32-битное целое, 4 байта.
	Int32 DType = "int32"
)

// Size возвращает размер элемента в байтах.
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Int32:
		return 4
	default:
		return 0
	}
}

// Handle — непрозрачная ссылка на сегмент: имя, форма, тип элемента.
//
// Handle — всё, что пересекает границу процесса; сами данные никогда
// не сериализуются.
type Handle struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	DType DType  `json:"dtype"`
}

// Len возвращает количество элементов.
func (h Handle) Len() int {
	if len(h.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

// Bytes возвращает размер сегмента в байтах.
func (h Handle) Bytes() int {
	return h.Len() * h.DType.Size()
}

// IsZero сообщает, что handle пустой (опциональный буфер отсутствует).
func (h Handle) IsZero() bool {
	return h.Name == ""
}

// String возвращает человекочитаемое описание.
func (h Handle) String() string {
	return fmt.Sprintf("%s%v:%s", h.Name, h.Shape, h.DType)
}

func (h Handle) validate() error {
	if h.Name == "" || filepath.Base(h.Name) != h.Name || h.Name == "." || h.Name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, h.Name)
	}
	if h.DType.Size() == 0 {
		return fmt.Errorf("%w: unknown dtype %q", ErrShapeMismatch, h.DType)
	}
	for _, d := range h.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: shape %v", ErrEmptyBuffer, h.Shape)
		}
	}
	if h.Len() == 0 {
		return fmt.Errorf("%w: shape %v", ErrEmptyBuffer, h.Shape)
	}
	return nil
}

func float64View(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func int32View(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}
