package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const DefaultCSVSource = "csv_upload"

// ReadCSV reads feedback rows from a CSV file with a header row. The text is
// taken from a "text" column, or "feedback" when text is empty or absent.
// An optional "source" column overrides DefaultCSVSource. Blank rows are
// skipped.
func ReadCSV(r io.Reader) ([]NewFeedback, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	textCol, feedbackCol, sourceCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "text":
			textCol = i
		case "feedback":
			feedbackCol = i
		case "source":
			sourceCol = i
		}
	}
	if textCol < 0 && feedbackCol < 0 {
		return nil, errors.New(`csv needs a "text" or "feedback" column`)
	}

	var items []NewFeedback
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		text := strings.TrimSpace(column(row, textCol))
		if text == "" {
			text = strings.TrimSpace(column(row, feedbackCol))
		}
		if text == "" {
			continue
		}
		source := strings.TrimSpace(column(row, sourceCol))
		if source == "" {
			source = DefaultCSVSource
		}
		items = append(items, NewFeedback{Text: text, Source: source})
	}
	return items, nil
}

func column(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
