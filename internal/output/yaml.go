package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/template"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatRecord formats a single VM record as YAML.
func (f *YAMLFormatter) FormatRecord(rec *record.Record) (string, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record to YAML: %w", err)
	}
	return string(data), nil
}

// FormatRecordList formats a list of VM records as YAML.
// Outputs as a YAML stream (multiple documents separated by ---).
func (f *YAMLFormatter) FormatRecordList(recs []*record.Record) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, rec := range recs {
		data, err := yaml.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("failed to marshal record %s to YAML: %w", rec.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatTemplateList formats a list of templates as a YAML stream.
func (f *YAMLFormatter) FormatTemplateList(tpls []*template.Template) (string, error) {
	if len(tpls) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, tpl := range tpls {
		data, err := yaml.Marshal(tpl)
		if err != nil {
			return "", fmt.Errorf("failed to marshal template %s to YAML: %w", tpl.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}
