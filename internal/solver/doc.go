// Package solver задаёт контракт solve(instance) -> result и встроенные solver'ы.
//
// Solver вызывается воркером синхронно и блокирует его до конца поиска.
// Registry выбирает solver по имени из domain.SolverParams.Solver:
//
//   - local — жадное построение по спискам кандидатов (heatmap или расстояния),
//     2-opt и перезапуски до ParamT × city_num секунд
//   - reference — возвращает эталонный тур
//
// Оба solver'а отклоняют вход с 2*max_depth > city_num (domain.ErrMaxDepthTooLarge).
package solver
