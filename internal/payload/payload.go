package payload

import (
	"errors"
	"fmt"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/shm"
	"github.com/shaiso/tspbatch/internal/solver"
)

// Descriptor — всё, что нужно воркеру, чтобы открыть буферы инстанса.
//
// Содержит только handles и скаляры, поэтому размер сообщения не зависит от N.
type Descriptor struct {
	// Dir — каталог сегментов арены.
	Dir string `json:"dir"`

	// Index — глобальная позиция инстанса во входной последовательности.
	Index int `json:"index"`

	CityNum  int                 `json:"city_num"`
	Geometry domain.GeometryKind `json:"geometry"`

	// Buffers
	GeometryBuf shm.Handle  `json:"geometry_buf"`
	Tour        shm.Handle  `json:"tour"`
	Heatmap     shm.Handle  `json:"heatmap"`
	Candidates  *shm.Handle `json:"candidates,omitempty"`
}

// Handles возвращает handles всех буферов дескриптора.
func (d Descriptor) Handles() []shm.Handle {
	hs := make([]shm.Handle, 0, 4)
	for _, h := range []shm.Handle{d.GeometryBuf, d.Tour, d.Heatmap} {
		if !h.IsZero() {
			hs = append(hs, h)
		}
	}
	if d.Candidates != nil && !d.Candidates.IsZero() {
		hs = append(hs, *d.Candidates)
	}
	return hs
}

// Payload — буферы одного инстанса на стороне владельца.
type Payload struct {
	arena *shm.Arena
	desc  Descriptor
}

// Write копирует инстанс в новые сегменты арены.
//
// При ошибке уже созданные сегменты освобождаются.
func Write(arena *shm.Arena, index int, in *domain.Instance) (*Payload, error) {
	n := in.CityNum
	p := &Payload{
		arena: arena,
		desc: Descriptor{
			Dir:      arena.Dir(),
			Index:    index,
			CityNum:  n,
			Geometry: in.Geometry(),
		},
	}

	var err error
	if p.desc.Geometry == domain.GeometryCoordinates {
		p.desc.GeometryBuf, err = arena.CreateFloat64([]int{n, 2}, in.Coordinates)
	} else {
		p.desc.GeometryBuf, err = arena.CreateFloat64([]int{n, n}, in.Distances)
	}
	if err != nil {
		return nil, fmt.Errorf("geometry buffer: %w", err)
	}

	if p.desc.Tour, err = arena.CreateInt32([]int{n}, in.OptimalTour); err != nil {
		p.Release()
		return nil, fmt.Errorf("tour buffer: %w", err)
	}

	if p.desc.Heatmap, err = arena.CreateFloat64([]int{n, n}, in.Heatmap); err != nil {
		p.Release()
		return nil, fmt.Errorf("heatmap buffer: %w", err)
	}

	if in.HasCandidates() {
		h, err := arena.CreateInt32([]int{n, in.CandidateK}, in.Candidates)
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("candidates buffer: %w", err)
		}
		p.desc.Candidates = &h
	}

	return p, nil
}

// Descriptor возвращает дескриптор для передачи воркеру.
func (p *Payload) Descriptor() Descriptor {
	return p.desc
}

// Index возвращает глобальную позицию инстанса.
func (p *Payload) Index() int {
	return p.desc.Index
}

// Release освобождает все буферы инстанса через арену.
func (p *Payload) Release() error {
	var errs []error
	for _, h := range p.desc.Handles() {
		if err := p.arena.Release(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Views — read-only отображения буферов инстанса на стороне воркера.
type Views struct {
	desc       Descriptor
	geometry   *shm.View
	tour       *shm.View
	heatmap    *shm.View
	candidates *shm.View
}

// Open отображает буферы дескриптора.
func Open(desc Descriptor) (*Views, error) {
	v := &Views{desc: desc}

	var err error
	if v.geometry, err = shm.Open(desc.Dir, desc.GeometryBuf); err != nil {
		return nil, err
	}
	if v.tour, err = shm.Open(desc.Dir, desc.Tour); err != nil {
		v.Close()
		return nil, err
	}
	if v.heatmap, err = shm.Open(desc.Dir, desc.Heatmap); err != nil {
		v.Close()
		return nil, err
	}
	if desc.Candidates != nil {
		if v.candidates, err = shm.Open(desc.Dir, *desc.Candidates); err != nil {
			v.Close()
			return nil, err
		}
	}
	return v, nil
}

// Input возвращает вход solver'а поверх отображённой памяти без копирования.
func (v *Views) Input() *solver.Input {
	in := &solver.Input{
		CityNum:     v.desc.CityNum,
		OptimalTour: v.tour.Int32s(),
		Heatmap:     v.heatmap.Float64s(),
	}
	if v.desc.Geometry == domain.GeometryCoordinates {
		in.Coordinates = v.geometry.Float64s()
	} else {
		in.Distances = v.geometry.Float64s()
	}
	if v.candidates != nil {
		in.Candidates = v.candidates.Int32s()
		in.CandidateK = v.desc.Candidates.Shape[1]
	}
	return in
}

// Close снимает все отображения. Срезы из Input после этого невалидны.
func (v *Views) Close() error {
	var errs []error
	for _, view := range []*shm.View{v.geometry, v.tour, v.heatmap, v.candidates} {
		if view == nil {
			continue
		}
		if err := view.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unlink удаляет сегменты дескриптора со стороны воркера (аварийный путь).
func Unlink(desc Descriptor) error {
	var errs []error
	for _, h := range desc.Handles() {
		if err := shm.Unlink(desc.Dir, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
