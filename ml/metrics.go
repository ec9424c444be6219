package ml

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// FoldMetric is one row of a bundle's fold_metrics.csv.
type FoldMetric struct {
	Fold     int     `json:"fold"`
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
}

// LoadFoldMetrics parses a fold,accuracy,loss CSV with a header row.
func LoadFoldMetrics(path string) ([]FoldMetric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	metrics := make([]FoldMetric, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s row %d: expected 3 columns, got %d", path, i+2, len(row))
		}
		fold, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad fold: %w", path, i+2, err)
		}
		accuracy, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad accuracy: %w", path, i+2, err)
		}
		loss, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad loss: %w", path, i+2, err)
		}
		metrics = append(metrics, FoldMetric{Fold: fold, Accuracy: accuracy, Loss: loss})
	}
	return metrics, nil
}
