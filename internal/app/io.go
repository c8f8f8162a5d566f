package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrcode/loop-engine/internal/models"
)

// Document formats
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// formatFor picks the document format from an explicit choice or the file extension
func formatFor(explicit, path string) (string, error) {
	switch strings.ToLower(explicit) {
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q", explicit)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return formatJSON, nil
}

// readRequest decodes a request document from path, or from stdin when
// path is empty or "-"
func readRequest(stdin io.Reader, path, format string) (*models.Request, error) {
	format, err := formatFor(format, path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path) //nolint:gosec // Path is supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req models.Request
	switch format {
	case formatYAML:
		err = yaml.NewDecoder(r).Decode(&req)
	default:
		err = json.NewDecoder(r).Decode(&req)
	}
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

// writeOutput encodes v to w as indented JSON or YAML
func writeOutput(w io.Writer, v any, format string) error {
	format, err := formatFor(format, "")
	if err != nil {
		return err
	}

	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
