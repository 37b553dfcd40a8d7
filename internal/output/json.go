package output

import (
	"encoding/json"
	"fmt"

	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/template"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatRecord formats a single VM record as JSON.
func (f *JSONFormatter) FormatRecord(rec *record.Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatRecordList formats a list of VM records as a JSON array.
func (f *JSONFormatter) FormatRecordList(recs []*record.Record) (string, error) {
	if len(recs) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatTemplateList formats a list of templates as a JSON array.
func (f *JSONFormatter) FormatTemplateList(tpls []*template.Template) (string, error) {
	if len(tpls) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(tpls, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal templates to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
