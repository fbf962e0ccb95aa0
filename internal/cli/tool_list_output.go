package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/kicad-mcp/internal/tools"
)

type toolListEntry struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	ReadOnly    bool           `json:"read_only"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

func writeToolList(w io.Writer, entries []toolListEntry, asJSON, verbose bool) error {
	if asJSON {
		return writeToolListJSON(w, entries)
	}
	return writeToolListText(w, entries, verbose)
}

func toolListEntries(defs []tools.Definition, category string, withSchema bool) ([]toolListEntry, error) {
	entries := make([]toolListEntry, 0, len(defs))
	for _, def := range defs {
		if category != "" && def.Category != category {
			continue
		}
		entry := toolListEntry{
			Name:        def.Operation(),
			Category:    def.Category,
			Description: def.Tool.Description,
			ReadOnly:    def.ReadOnly(),
		}
		if withSchema {
			raw, err := json.Marshal(def.Tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("encoding %s schema: %w", entry.Name, err)
			}
			if err := json.Unmarshal(raw, &entry.InputSchema); err != nil {
				return nil, fmt.Errorf("decoding %s schema: %w", entry.Name, err)
			}
		}
		entries = append(entries, entry)
	}
	if category != "" && len(entries) == 0 {
		return nil, fmt.Errorf("unknown category %q (want one of: %s)", category, strings.Join(tools.Categories(), ", "))
	}
	return entries, nil
}

func writeToolListText(w io.Writer, entries []toolListEntry, verbose bool) error {
	current := ""
	for _, entry := range entries {
		if entry.Category != current {
			if current != "" {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return fmt.Errorf("writing tool list output: %w", err)
				}
			}
			current = entry.Category
			if _, err := io.WriteString(w, current+":\n"); err != nil {
				return fmt.Errorf("writing tool list output: %w", err)
			}
		}
		line := "  " + entry.Name
		if verbose && entry.Description != "" {
			line += "\t" + strings.TrimSpace(entry.Description)
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("writing tool list output: %w", err)
		}
	}
	return nil
}

func writeToolListJSON(w io.Writer, entries []toolListEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("writing tool list output: %w", err)
	}
	return nil
}
