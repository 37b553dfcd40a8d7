package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/template"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatRecord formats a single VM record as a table row.
func (f *TableFormatter) FormatRecord(rec *record.Record) (string, error) {
	return f.FormatRecordList([]*record.Record{rec})
}

// FormatRecordList formats a list of VM records as a table.
func (f *TableFormatter) FormatRecordList(recs []*record.Record) (string, error) {
	if len(recs) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tTEMPLATE\tVCPUs\tMEMORY\tDISK\tAGE")
	}

	for _, rec := range recs {
		state := string(rec.State)
		if state == "" {
			state = "-"
		}
		tpl := rec.Template
		if tpl == "" {
			tpl = "-"
		}

		memory := fmt.Sprintf("%d MiB", rec.MemoryMiB)
		disk := fmt.Sprintf("%d GB", rec.DiskGB)

		age := "-"
		if !rec.CreatedAt.IsZero() {
			age = formatAge(time.Since(rec.CreatedAt))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.Name, state, tpl, rec.VCPUs, memory, disk, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatTemplateList formats a list of templates as a table.
func (f *TableFormatter) FormatTemplateList(tpls []*template.Template) (string, error) {
	if len(tpls) == 0 {
		return "No templates found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tOS\tVERSION\tDISK\tUSER\tCLOUD-INIT")
	}

	for _, tpl := range tpls {
		user := tpl.DefaultUser
		if user == "" {
			user = "-"
		}
		cloudInit := "no"
		if tpl.CloudImageSupport {
			cloudInit = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d GB\t%s\t%s\n",
			tpl.Name, tpl.OS, tpl.Version, tpl.DefaultDiskGB, user, cloudInit)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}

	return fmt.Sprintf("%dd", days)
}
