// Package report renders batch summaries as JSON and PDF.
package report

import (
	"os"

	"github.com/goccy/go-json"

	"example.com/fitfaker/internal/batch"
)

func SaveSummaryJSON(sum batch.Summary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (batch.Summary, error) {
	var sum batch.Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	err = json.Unmarshal(b, &sum)
	return sum, err
}
