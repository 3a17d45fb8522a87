package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/mcpbridge/internal/tool"
)

type toolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// toolListEntries keeps catalog order. Without verbose only the first line
// of each description is kept and schemas are omitted.
func toolListEntries(descriptors []tool.Descriptor, verbose bool) []toolListEntry {
	entries := make([]toolListEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entry := toolListEntry{Name: d.Name}
		if verbose {
			entry.Description = strings.TrimSpace(d.Description)
			entry.InputSchema = d.Spec().ToolSpec.InputSchema.JSON
		} else {
			entry.Description = firstLine(d.Description)
		}
		entries = append(entries, entry)
	}
	return entries
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		return strings.TrimSpace(line)
	}
	return s
}

func writeToolListText(w io.Writer, entries []toolListEntry) error {
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		line := name
		if desc := strings.TrimSpace(entry.Description); desc != "" {
			line += "\t" + desc
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("writing tool list output: %w", err)
		}
	}
	return nil
}

func writeToolListJSON(w io.Writer, entries []toolListEntry) error {
	if entries == nil {
		entries = make([]toolListEntry, 0)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("writing tool list output: %w", err)
	}
	return nil
}

func findTool(descriptors []tool.Descriptor, name string) (tool.Descriptor, bool) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return tool.Descriptor{}, false
}

func printToolHelp(out io.Writer, d tool.Descriptor) {
	fmt.Fprintf(out, "Usage: %s call %s [--key value ... | '{json}']\n", programName, d.Name)
	if desc := strings.TrimSpace(d.Description); desc != "" {
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, desc)
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Input schema:")
	var pretty strings.Builder
	schema := d.Spec().ToolSpec.InputSchema.JSON
	var v any
	if err := json.Unmarshal(schema, &v); err == nil {
		enc := json.NewEncoder(&pretty)
		enc.SetIndent("  ", "  ")
		_ = enc.Encode(v)
		fmt.Fprint(out, "  "+pretty.String())
		return
	}
	fmt.Fprintf(out, "  %s\n", schema)
}
