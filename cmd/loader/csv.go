package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/verdant/internal/domain"
)

// textColumns are never parsed as numbers.
var textColumns = map[string]bool{
	"id":       true,
	"name":     true,
	"industry": true,
	"country":  true,
}

// columnAliases map common spreadsheet headers to record fields.
var columnAliases = map[string]string{
	"supplier_id":     "id",
	"supplier_name":   "name",
	"sector":          "industry",
	"ghg_emissions":   "emissions",
	"water":           "water_use",
	"renewables":      "renewable_share",
	"transparency":    "transparency_score",
	"anti_corruption": "anti_corruption_policy",
}

func readSuppliersCSV(path string) ([]*domain.SupplierRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseSuppliers(file)
}

// parseSuppliers reads a header row of snake_case field names followed by one
// supplier per row. Empty cells stay undisclosed.
func parseSuppliers(r io.Reader) ([]*domain.SupplierRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if alias, ok := columnAliases[col]; ok {
			col = alias
		}
		columns[i] = col
	}

	var records []*domain.SupplierRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := make(map[string]any, len(row))
		for i, cell := range row {
			if i >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" || strings.EqualFold(cell, "n/a") {
				continue
			}
			fields[columns[i]] = cellValue(columns[i], cell)
		}

		rec, err := toRecord(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: id is required", line)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellValue(column, cell string) any {
	if textColumns[column] {
		return cell
	}
	if column == "anti_corruption_policy" {
		switch strings.ToLower(cell) {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		}
		if b, err := strconv.ParseBool(cell); err == nil {
			return b
		}
		return cell
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(strings.TrimSuffix(cell, "%"), 64); err == nil {
		return f
	}
	return cell
}

// toRecord decodes the row through the record's YAML field names.
func toRecord(fields map[string]any) (*domain.SupplierRecord, error) {
	data, err := yaml.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var rec domain.SupplierRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
