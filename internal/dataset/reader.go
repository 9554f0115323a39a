// Package dataset reads the trade CSV export into TradeRecords.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"solana-trade-inspector/internal/domain"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// RequiredColumns must be present in every export.
var RequiredColumns = []string{
	domain.ColType,
	domain.ColTradeTimestamp,
	domain.ColTokenMintAddress,
}

// Reader streams records from a CSV export with a header row. Typed columns
// are parsed by kind; unparseable numbers become null. Other columns are
// returned as raw strings in Extra, empty cells as nil.
type Reader struct {
	csv    *csv.Reader
	header []string
	kinds  []domain.Kind // zero for pass-through columns
	row    uint64

	// Invalid counts typed cells that could not be parsed.
	Invalid int64
}

// NewReader reads the header of r and validates it.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	seen := make(map[string]struct{}, len(header))
	kinds := make([]domain.Kind, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = struct{}{}
		kinds[i], _ = domain.CoreKind(h)
	}
	for _, c := range RequiredColumns {
		if _, ok := seen[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	return &Reader{csv: cr, header: header, kinds: kinds}, nil
}

// Header returns the column names in file order.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next record or io.EOF. RowID is the zero-based data line index.
func (r *Reader) Next() (*domain.TradeRecord, error) {
	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read row %d: %w", r.row, err)
	}

	rec := &domain.TradeRecord{RowID: r.row}
	r.row++
	for i, name := range r.header {
		var cell string
		if i < len(fields) {
			cell = strings.TrimSpace(fields[i])
		}
		switch r.kinds[i] {
		case domain.KindString:
			rec.Set(name, cell)
		case domain.KindFloat:
			rec.Set(name, r.parseFloat(cell))
		case domain.KindInt:
			rec.Set(name, r.parseInt(cell))
		default:
			if cell == "" {
				rec.Set(name, nil)
			} else {
				rec.Set(name, cell)
			}
		}
	}
	return rec, nil
}

func (r *Reader) parseFloat(cell string) any {
	if cell == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		r.Invalid++
		return nil
	}
	return f
}

func (r *Reader) parseInt(cell string) any {
	if cell == "" {
		return nil
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	// Exports written through a float column carry slots as "123.0".
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		r.Invalid++
		return nil
	}
	return int64(f)
}

// Dataset is a fully loaded export.
type Dataset struct {
	Schema  domain.Schema
	Records []*domain.TradeRecord
	Invalid int64
}

// Read loads every record of r. Pass-through columns whose non-empty cells
// all parse as numbers become float columns; the others stay strings.
func Read(r io.Reader) (*Dataset, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	inf := newInference(reader)

	var records []*domain.TradeRecord
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		inf.observe(rec)
		records = append(records, rec)
	}

	schema := inf.schema()
	for _, col := range schema.Columns() {
		if _, core := domain.CoreKind(col.Name); !core && col.Kind == domain.KindFloat {
			convertColumn(records, col.Name)
		}
	}

	return &Dataset{
		Schema:  schema,
		Records: records,
		Invalid: reader.Invalid,
	}, nil
}

// InferSchema scans r once and returns the schema Read would produce,
// without keeping the records.
func InferSchema(r io.Reader) (domain.Schema, error) {
	reader, err := NewReader(r)
	if err != nil {
		return domain.Schema{}, err
	}
	inf := newInference(reader)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return inf.schema(), nil
		}
		if err != nil {
			return domain.Schema{}, err
		}
		inf.observe(rec)
	}
}

// UseSchema makes Next parse pass-through columns that schema declares
// numeric, so streamed records carry the same value types as Read.
func (r *Reader) UseSchema(schema domain.Schema) {
	for i, name := range r.header {
		if _, core := domain.CoreKind(name); core {
			continue
		}
		if def, ok := schema.Lookup(name); ok && def.Kind == domain.KindFloat {
			r.kinds[i] = domain.KindFloat
		}
	}
}

// inference tracks whether each pass-through column holds only numbers.
type inference struct {
	header  []string
	kinds   []domain.Kind
	numeric map[string]bool // false once a non-numeric cell is seen
}

func newInference(r *Reader) *inference {
	return &inference{
		header:  r.Header(),
		kinds:   append([]domain.Kind(nil), r.kinds...),
		numeric: make(map[string]bool),
	}
}

func (inf *inference) observe(rec *domain.TradeRecord) {
	for i, name := range inf.header {
		if inf.kinds[i] != 0 {
			continue
		}
		s, ok := rec.Extra[name].(string)
		if !ok {
			continue
		}
		numeric, seen := inf.numeric[name]
		if seen && !numeric {
			continue
		}
		_, err := strconv.ParseFloat(s, 64)
		inf.numeric[name] = err == nil
	}
}

func (inf *inference) schema() domain.Schema {
	cols := make([]domain.ColumnDef, len(inf.header))
	for i, name := range inf.header {
		kind := inf.kinds[i]
		if kind == 0 {
			kind = domain.KindString
			if inf.numeric[name] {
				kind = domain.KindFloat
			}
		}
		cols[i] = domain.ColumnDef{Name: name, Kind: kind}
	}
	return domain.NewSchema(cols...)
}

// LoadFile reads a CSV export from disk.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds, nil
}

func convertColumn(records []*domain.TradeRecord, col string) {
	for _, rec := range records {
		if s, ok := rec.Extra[col].(string); ok {
			f, _ := strconv.ParseFloat(s, 64)
			rec.Extra[col] = f
		}
	}
}
