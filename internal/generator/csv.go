package generator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"order_pacer/internal/model"
)

var headerAliases = map[string]string{
	"first_name": "first",
	"firstname":  "first",
	"name":       "first",
	"имя":        "first",
	"last_name":  "last",
	"lastname":   "last",
	"surname":    "last",
	"фамилия":    "last",
	"phone":      "phone",
	"телефон":    "phone",
}

// ParseSamplesCSV reads contact samples from CSV with a header row. Columns
// are matched by name (first_name/name, last_name/surname, phone); the
// spreadsheet headers Имя/Фамилия/Телефон are accepted too. Rows missing a
// first name or phone are skipped.
func ParseSamplesCSV(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, err
	}
	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if alias, ok := headerAliases[key]; ok {
			if _, dup := cols[alias]; !dup {
				cols[alias] = i
			}
		}
	}
	if _, ok := cols["first"]; !ok {
		return nil, errors.New("csv header has no first name column")
	}
	if _, ok := cols["phone"]; !ok {
		return nil, errors.New("csv header has no phone column")
	}

	get := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []model.Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		smp := model.Sample{
			FirstName: get(rec, "first"),
			LastName:  get(rec, "last"),
			Phone:     get(rec, "phone"),
		}
		if smp.FirstName == "" || smp.Phone == "" {
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}
