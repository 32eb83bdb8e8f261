package main

import (
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// outputFormat mirrors the teacher's internal/output.Format: table is the
// default human-readable rendering each command already writes by hand,
// json/yaml are structured alternatives for scripting.
type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutputFormat(s string) outputFormat {
	switch strings.ToLower(s) {
	case "json":
		return outputJSON
	case "yaml", "yml":
		return outputYAML
	default:
		return outputTable
	}
}

// printStructured writes data as JSON or YAML to w. It returns false (and
// writes nothing) for outputTable, letting the caller fall back to its own
// hand-formatted table rendering.
func printStructured(w io.Writer, format outputFormat, data interface{}) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(data)
	default:
		return false, nil
	}
}
