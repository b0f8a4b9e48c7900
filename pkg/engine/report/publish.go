package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/storage"
)

// Formats lists the supported output formats.
var Formats = []string{"table", "json", "csv", "html"}

// Write renders findings in the named format.
func Write(w io.Writer, format string, res *scan.Result, findings []finding.Finding) error {
	switch format {
	case "", "table":
		return WriteTable(w, res, findings)
	case "json":
		return WriteJSON(w, res, findings)
	case "csv":
		return WriteCSV(w, findings)
	case "html":
		return WriteHTML(w, res, findings)
	}
	return fmt.Errorf("unknown report format %q", format)
}

var artifacts = []struct {
	name   string
	format string
}{
	{"findings.json", "json"},
	{"findings.csv", "csv"},
	{"dashboard.html", "html"},
}

// Publish stores the JSON, CSV and HTML artifacts under scans/<id>/ and
// returns the keys written.
func Publish(ctx context.Context, store storage.BlobStore, res *scan.Result, findings []finding.Finding) ([]string, error) {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		var buf bytes.Buffer
		if err := Write(&buf, a.format, res, findings); err != nil {
			return keys, fmt.Errorf("render %s: %w", a.name, err)
		}
		key := path.Join("scans", res.ID, a.name)
		if err := store.Put(ctx, key, buf.Bytes()); err != nil {
			return keys, fmt.Errorf("publish %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
