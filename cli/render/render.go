// Package render writes command output in the caller's chosen format.
//
// The format is resolved in this order: an explicit --format flag wins;
// otherwise stdout being a terminal selects table, and anything else
// gets json. --no-color only matters for table output; the TUI carries
// its own styling and ignores it.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/sluice/cli/tui"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a flag value to a Format. The empty string passes
// through unchanged so the caller can apply its terminal-based default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes values to one destination in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a stdout renderer from the command's flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTerminal(os.Stdout) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: os.Stdout}, nil
}

// NewRendererWithWriter builds a renderer against an arbitrary writer.
// Tests use it to capture output.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI hands off to the interactive view for viewType. Only some
// commands have a live view, and only behind the --tui flag.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

// renderTable lays data out with aligned columns: a slice becomes a grid
// with one row per element, anything else a label/value listing.
func (r *Renderer) renderTable(data any) error {
	v := reflect.Indirect(reflect.ValueOf(data))
	if v.Kind() == reflect.Slice && v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	if v.Kind() == reflect.Slice {
		writeGrid(w, v)
	} else {
		writeFields(w, v, data)
	}
	return w.Flush()
}

func writeGrid(w io.Writer, v reflect.Value) {
	labels := rowLabels(reflect.Indirect(v.Index(0)))
	fmt.Fprintln(w, strings.Join(labels, "\t"))
	for i := 0; i < v.Len(); i++ {
		fmt.Fprintln(w, strings.Join(rowCells(reflect.Indirect(v.Index(i)), labels), "\t"))
	}
}

func writeFields(w io.Writer, v reflect.Value, data any) {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			fmt.Fprintf(w, "%s:\t%s\n", fieldLabel(t.Field(i)), cellText(v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), cellText(iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
}

func rowLabels(v reflect.Value) []string {
	var labels []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			labels = append(labels, fieldLabel(t.Field(i)))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			labels = append(labels, fmt.Sprintf("%v", key.Interface()))
		}
	}
	return labels
}

func rowCells(v reflect.Value, labels []string) []string {
	var cells []string
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			cells = append(cells, cellText(v.Field(i)))
		}
	case reflect.Map:
		for _, label := range labels {
			cells = append(cells, cellText(v.MapIndex(reflect.ValueOf(label))))
		}
	}
	return cells
}

// fieldLabel prefers the json tag name over the lowercased field name,
// keeping table labels in step with the json encoding of the same value.
func fieldLabel(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// cellText renders one value for one cell. Nested containers collapse to
// a size summary so rows stay one line tall.
func cellText(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if ts, ok := v.Interface().(time.Time); ok {
			return fmt.Sprintf("%v", ts)
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
