// Package importer loads question banks from spreadsheets. Each row is one
// question; the first row names the columns.
//
// Required columns: curriculum_id, unit_id, question_id, type, content.
// Optional columns: unit_title, unit_order, order.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

var requiredColumns = []string{"curriculum_id", "unit_id", "question_id", "type", "content"}

// Options tune an import.
type Options struct {
	// Sheet is the worksheet to read from an .xlsx file. Default: the
	// first sheet.
	Sheet string

	// DryRun validates every row without writing anything.
	DryRun bool
}

// Result summarizes an import.
type Result struct {
	Rows    int
	Units   int
	Created int
	Updated int
	Skipped int
	Errors  []string
}

// Importer writes question banks into the store.
type Importer struct {
	store *store.Store
	log   logrus.FieldLogger
}

// New creates an Importer.
func New(s *store.Store, log logrus.FieldLogger) *Importer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Importer{store: s, log: log.WithField("component", "importer")}
}

// ImportFile imports a .csv or .xlsx file.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return im.ImportCSV(ctx, f, opts)
	case ".xlsx", ".xlsm":
		return im.ImportXLSX(ctx, f, opts)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

// ImportCSV imports comma separated rows.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return im.importRows(ctx, rows, opts)
}

// ImportXLSX imports the rows of one worksheet.
func (im *Importer) ImportXLSX(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return im.importRows(ctx, rows, opts)
}

type row struct {
	line     int
	unit     store.Unit
	question store.QuestionRow
}

func (im *Importer) importRows(ctx context.Context, rows [][]string, opts Options) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	cols, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var parsed []row
	seen := make(map[string]int)
	for i, raw := range rows[1:] {
		line := i + 2
		if blank(raw) {
			continue
		}
		res.Rows++
		r, err := parseRow(cols, raw)
		if err == nil {
			if prev, dup := seen[r.question.ID]; dup {
				err = fmt.Errorf("question %s already defined on row %d", r.question.ID, prev)
			}
		}
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		r.line = line
		seen[r.question.ID] = line
		parsed = append(parsed, r)
	}

	units := make(map[string]store.Unit)
	for _, r := range parsed {
		if _, ok := units[r.unit.ID]; !ok {
			units[r.unit.ID] = r.unit
		}
	}
	res.Units = len(units)

	if opts.DryRun {
		res.Created = len(parsed)
		return res, nil
	}

	err = im.store.WithTx(ctx, func(tx *store.Conn) error {
		for _, u := range units {
			if err := tx.UpsertUnit(ctx, u); err != nil {
				return err
			}
		}
		for _, r := range parsed {
			created, err := tx.UpsertQuestion(ctx, r.question)
			if err != nil {
				return fmt.Errorf("row %d: %w", r.line, err)
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.log.WithFields(logrus.Fields{
		"units":   res.Units,
		"created": res.Created,
		"updated": res.Updated,
		"skipped": res.Skipped,
	}).Info("question bank imported")
	return res, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(cols map[string]int, raw []string) (row, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(raw) {
			return ""
		}
		return strings.TrimSpace(raw[i])
	}
	atoi := func(name string) (int, error) {
		s := get(name)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", name, s)
		}
		return n, nil
	}

	var r row
	for _, name := range requiredColumns {
		if get(name) == "" {
			return r, fmt.Errorf("%s is empty", name)
		}
	}
	unitOrder, err := atoi("unit_order")
	if err != nil {
		return r, err
	}
	order, err := atoi("order")
	if err != nil {
		return r, err
	}

	qt := quiz.QuestionType(get("type"))
	payload := json.RawMessage(get("content"))
	if _, err := content.DecodePayload(qt, payload); err != nil {
		return r, err
	}

	r.unit = store.Unit{
		ID:           get("unit_id"),
		CurriculumID: get("curriculum_id"),
		Title:        get("unit_title"),
		Order:        unitOrder,
	}
	r.question = store.QuestionRow{
		ID:      get("question_id"),
		UnitID:  r.unit.ID,
		Type:    string(qt),
		Content: payload,
		Order:   order,
	}
	return r, nil
}

func blank(raw []string) bool {
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
