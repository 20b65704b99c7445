package legacy

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shaiso/tspbatch/internal/domain"
)

// outputToken разделяет данные инстанса и тур в Concorde-строке.
const outputToken = "output"

// resultPattern — строка результата, которую печатает исполняемый файл.
var resultPattern = regexp.MustCompile(
	`Avg_Concorde_Distance:\s*(-?\d+\.\d+)\s+` +
		`Avg_MCTS_Distance:\s*(-?\d+\.\d+)\s+` +
		`Avg_Gap:\s*(-?\d+\.\d+)\s+` +
		`Total_Time:\s*(-?\d+\.\d+)`,
)

// Record — одна строка результата.
type Record struct {
	ConcordeDistance float64
	MCTSDistance     float64
	Gap              float64
	TotalTime        float64
}

// Result переводит запись в общий domain.Result (без тура).
func (r Record) Result() *domain.Result {
	return &domain.Result{
		ConcordeDistance: r.ConcordeDistance,
		MCTSDistance:     r.MCTSDistance,
		Gap:              r.Gap,
		SolveTime:        r.TotalTime,
	}
}

// ParseResults находит все строки результата в тексте.
func ParseResults(content string) []Record {
	matches := resultPattern.FindAllStringSubmatch(content, -1)
	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		var vals [4]float64
		for i := range vals {
			// Шаблон гарантирует корректное число.
			vals[i], _ = strconv.ParseFloat(m[i+1], 64)
		}
		records = append(records, Record{
			ConcordeDistance: vals[0],
			MCTSDistance:     vals[1],
			Gap:              vals[2],
			TotalTime:        vals[3],
		})
	}
	return records
}

// WriteConcordeFile пишет одну Concorde-строку:
// значения матрицы расстояний, "output", тур в 1-based нумерации.
func WriteConcordeFile(w io.Writer, distances []float64, tour []int) error {
	bw := bufio.NewWriter(w)
	for _, d := range distances {
		bw.WriteString(formatFloat(d))
		bw.WriteByte(' ')
	}
	bw.WriteString(outputToken)
	for _, c := range tour {
		bw.WriteByte(' ')
		bw.WriteString(strconv.Itoa(c + 1))
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// WriteHeatmapFile пишет heatmap: строка N, затем N строк по N чисел.
func WriteHeatmapFile(w io.Writer, heatmap []float64, n int) error {
	if len(heatmap) != n*n {
		return fmt.Errorf("%w: heatmap has %d values, want %d", ErrMalformedFile, len(heatmap), n*n)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.Itoa(n))
	bw.WriteByte('\n')
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatFloat(heatmap[i*n+j]))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ConcordeRecord — инстанс, прочитанный из Concorde-строки.
type ConcordeRecord struct {
	CityNum     int
	Coordinates []float64
	Distances   []float64
	Tour        []int // 0-based
}

// ReadConcordeFile читает все строки Concorde-файла.
//
// Часть до "output" — либо 2N координат, либо N² расстояний (N — длина тура).
// При N = 2 оба варианта дают 4 значения; строка читается как матрица расстояний.
func ReadConcordeFile(r io.Reader) ([]ConcordeRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<30)

	var records []ConcordeRecord
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rec, err := parseConcordeLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseConcordeLine(text string) (ConcordeRecord, error) {
	head, tail, ok := strings.Cut(text, outputToken)
	if !ok {
		return ConcordeRecord{}, fmt.Errorf("%w: missing %q token", ErrMalformedFile, outputToken)
	}

	values, err := parseFloats(strings.Fields(head))
	if err != nil {
		return ConcordeRecord{}, err
	}

	tokens := strings.Fields(tail)
	tour := make([]int, len(tokens))
	for i, tok := range tokens {
		c, err := strconv.Atoi(tok)
		if err != nil {
			return ConcordeRecord{}, fmt.Errorf("%w: tour value %q", ErrMalformedFile, tok)
		}
		tour[i] = c - 1
	}

	n := len(tour)
	if n < 2 {
		return ConcordeRecord{}, fmt.Errorf("%w: tour has %d cities", ErrMalformedFile, n)
	}
	rec := ConcordeRecord{CityNum: n, Tour: tour}
	switch len(values) {
	case n * n:
		rec.Distances = values
	case 2 * n:
		rec.Coordinates = values
	default:
		return ConcordeRecord{}, fmt.Errorf("%w: %d values do not match %d cities", ErrMalformedFile, len(values), n)
	}

	if err := domain.ValidateTour(tour, n); err != nil {
		return ConcordeRecord{}, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	return rec, nil
}

// ReadHeatmapFile читает heatmap: строка N, затем N строк по N чисел.
func ReadHeatmapFile(r io.Reader) ([]float64, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<28)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: empty heatmap file", ErrMalformedFile)
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || n < 1 {
		return nil, 0, fmt.Errorf("%w: bad header %q", ErrMalformedFile, scanner.Text())
	}

	heatmap := make([]float64, 0, n*n)
	rows := 0
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != n {
			return nil, 0, fmt.Errorf("%w: row %d has %d values, want %d", ErrMalformedFile, rows, len(fields), n)
		}
		row, err := parseFloats(fields)
		if err != nil {
			return nil, 0, err
		}
		heatmap = append(heatmap, row...)
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	if rows != n {
		return nil, 0, fmt.Errorf("%w: %d rows, want %d", ErrMalformedFile, rows, n)
	}
	return heatmap, n, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: value %q", ErrMalformedFile, f)
		}
		out[i] = v
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
