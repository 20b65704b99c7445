package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/mq"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// reportView — JSON-представление отчёта: позиции плюс колонки.
type reportView struct {
	*domain.Report
	Columns domain.Columns `json:"columns"`
}

// Report выводит отчёт run'а: строка на инстанс, итог в stderr.
func (o *Output) Report(report *domain.Report) {
	if o.jsonMode {
		o.JSON(reportView{Report: report, Columns: report.Columns()})
		return
	}

	headers := []string{"INDEX", "STATUS", "CONCORDE", "MCTS", "GAP", "SOLVE_TIME", "OVERALL_TIME"}
	rows := make([][]string, len(report.Outcomes))
	for i, out := range report.Outcomes {
		if !out.IsPresent() {
			rows[i] = []string{strconv.Itoa(out.Index), string(out.Status), "-", "-", "-", "-", out.Error}
			continue
		}
		r := out.Result
		rows[i] = []string{
			strconv.Itoa(out.Index),
			string(out.Status),
			formatFloat(r.ConcordeDistance),
			formatFloat(r.MCTSDistance),
			formatGap(r.Gap),
			formatSeconds(r.SolveTime),
			formatSeconds(r.OverallTime),
		}
	}
	o.Table(headers, rows)

	s := report.Stats
	o.Success(fmt.Sprintf("run %s %s: %d/%d present, mean gap %s, mean solve time %s",
		report.Run.ID, report.Run.Status, s.Present, s.Total, formatGap(s.MeanGap), formatSeconds(s.MeanSolveTime)))
}

// Event выводит одно событие из очереди.
func (o *Output) Event(msg *mq.Message, event any) error {
	if o.jsonMode {
		return o.JSON(msg)
	}

	line := msg.Timestamp.Format("15:04:05") + "  " + string(msg.Type)
	switch ev := event.(type) {
	case mq.BatchCompletedPayload:
		line += fmt.Sprintf("  run=%s batch=%d [%d,%d) present=%d absent=%d duration=%s",
			ev.RunID, ev.Batch, ev.Lo, ev.Hi, ev.Present, ev.Absent, formatSeconds(ev.Duration))
		if ev.Error != "" {
			line += " error=" + strconv.Quote(ev.Error)
		}
	case mq.RunCompletedPayload:
		line += fmt.Sprintf("  run=%s status=%s backend=%s present=%d/%d mean_gap=%s",
			ev.RunID, ev.Status, ev.Backend, ev.Stats.Present, ev.Stats.Total, formatGap(ev.Stats.MeanGap))
		if ev.Error != "" {
			line += " error=" + strconv.Quote(ev.Error)
		}
	}
	_, err := fmt.Fprintln(o.w, line)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatGap(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 3, 64) + "%"
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64) + "s"
}
