package producer

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-leave-ledger/internal/events"
)

// csvColumns is the header of the exported leave log.
var csvColumns = []string{
	"request_id", "employee_id", "leave_type", "start_date", "end_date",
	"days", "event_type", "status", "created_at", "approved_at",
}

// LoadFile reads a leave log, choosing the format by extension: .csv, or
// JSON Lines for anything else.
func LoadFile(path string) ([]events.LeaveEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f)
	}
	return ReadJSONLines(f)
}

// ReadCSV maps columns by header name; extra columns are ignored and empty
// timestamps become null.
func ReadCSV(r io.Reader) ([]events.LeaveEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{"request_id", "employee_id", "event_type"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv header missing %q (want %s)", col, strings.Join(csvColumns, ","))
		}
	}

	var out []events.LeaveEvent
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		ev := events.LeaveEvent{
			RequestID:  get("request_id"),
			EmployeeID: get("employee_id"),
			LeaveType:  get("leave_type"),
			StartDate:  get("start_date"),
			EndDate:    get("end_date"),
			EventType:  get("event_type"),
			Status:     get("status"),
			CreatedAt:  nullable(get("created_at")),
			ApprovedAt: nullable(get("approved_at")),
		}
		if v := get("days"); v != "" {
			days, err := parseDays(v)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: days %q: %w", line, v, err)
			}
			ev.Days = days
		}
		out = append(out, ev)
	}
}

// ReadJSONLines reads one event object per line; blank lines are skipped.
func ReadJSONLines(r io.Reader) ([]events.LeaveEvent, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []events.LeaveEvent
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var ev events.LeaveEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullable(v string) *string {
	if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

// parseDays accepts "3" and the "3.0" spreadsheets export.
func parseDays(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not a whole number")
	}
	return int(f), nil
}
