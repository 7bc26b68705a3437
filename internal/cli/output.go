package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/scheduler"
)

// cellWidth — ширина ячеек с результатом и ошибкой в табличном режиме.
const cellWidth = 48

// Output печатает вызовы, итоги и расписания: таблицей или JSON (--json).
// Данные идут в w, сообщения о ходе работы в errW.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output в stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными writer'ами.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// sentCall — опубликованный вызов.
type sentCall struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

// Sent печатает id опубликованного вызова.
func (o *Output) Sent(id, taskName string) {
	if o.jsonMode {
		o.json(sentCall{ID: id, Task: taskName})
		return
	}
	o.table([]string{"ID", "TASK"}, [][]string{{id, taskName}})
}

// Outcome печатает итог вызова. В JSON-режиме — объект backend.Outcome как есть.
func (o *Output) Outcome(out *backend.Outcome) {
	if o.jsonMode {
		o.json(out)
		return
	}

	finished := "-"
	if !out.FinishedAt.IsZero() {
		finished = out.FinishedAt.Local().Format(time.RFC3339)
	}

	o.table(
		[]string{"ID", "TASK", "STATUS", "ATTEMPTS", "KIND", "RESULT", "ERROR", "FINISHED"},
		[][]string{{
			out.TaskID,
			out.TaskName,
			string(out.Status),
			strconv.Itoa(out.Attempts),
			orDash(string(out.Kind)),
			orDash(clip(string(out.Result))),
			orDash(clip(out.Error)),
			finished,
		}},
	)
}

// Tasks печатает список известных задач.
func (o *Output) Tasks(infos []taskInfo) {
	if o.jsonMode {
		o.json(infos)
		return
	}

	rows := make([][]string, 0, len(infos))
	for _, i := range infos {
		rows = append(rows, []string{i.Name, orDash(i.Queue), orDash(i.Timeout), orDash(i.MaxRetries)})
	}
	o.table([]string{"NAME", "QUEUE", "TIMEOUT", "MAX_RETRIES"}, rows)
}

// scheduleRow — запись расписания с ближайшим сроком.
type scheduleRow struct {
	scheduler.Entry
	NextDue time.Time `json:"next_due"`
}

// Schedule печатает записи расписания beat.
func (o *Output) Schedule(entries []scheduleRow) {
	if o.jsonMode {
		o.json(entries)
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		every := "-"
		if e.IntervalSec > 0 {
			every = (time.Duration(e.IntervalSec) * time.Second).String()
		}
		rows = append(rows, []string{
			e.Name, e.Task, orDash(e.Cron), every, orDash(e.Queue), e.NextDue.Local().Format(time.RFC3339),
		})
	}
	o.table([]string{"NAME", "TASK", "CRON", "EVERY", "QUEUE", "NEXT_DUE"}, rows)
}

// Success выводит сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

func (o *Output) json(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// clip обрезает значение до cellWidth символов и схлопывает переводы строк.
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= cellWidth {
		return s
	}
	r := []rune(s)
	return string(r[:cellWidth-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
