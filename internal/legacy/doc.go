// Package legacy — альтернативный транспорт через файлы и внешний процесс.
//
// Используется, когда solver доступен только как отдельный исполняемый файл.
//
// Форматы:
//
//	concorde_<i>.txt  <N² расстояний> output <тур 1-based>
//	heatmap_<i>.txt   N, затем N строк по N чисел
//	result_<i>.txt    Avg_Concorde_Distance: f Avg_MCTS_Distance: f Avg_Gap: f Total_Time: f
//
// Текстовый формат результата не выходит за пределы пакета: записи
// переводятся в тот же domain.Result, что и у in-process пути (без тура).
package legacy
