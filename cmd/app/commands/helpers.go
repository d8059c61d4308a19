// Package commands implements the CLI commands over the group and secret
// managers.
package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// parseTimeFlag parses an optional RFC 3339 flag value.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, want RFC 3339 (e.g. 2026-01-02T15:04:05Z): %w", name, err)
	}
	return &t, nil
}

// parseAccess parses an access-level flag value.
func parseAccess(value string) (policy.Access, error) {
	switch policy.Access(value) {
	case policy.AccessAdmin, policy.AccessReadOnly:
		return policy.Access(value), nil
	default:
		return "", fmt.Errorf("invalid access level %q, want %q or %q",
			value, policy.AccessAdmin, policy.AccessReadOnly)
	}
}

// parseState parses an optional lifecycle-state flag value. Empty stays empty
// so the manager applies its default.
func parseState(value string) (domain.State, error) {
	if value == "" {
		return "", nil
	}
	state := domain.State(strings.ToUpper(value))
	if _, err := state.Digit(); err != nil {
		return "", fmt.Errorf("invalid state %q, want ENABLED, DISABLED or COMPROMISED", value)
	}
	return state, nil
}

// parseBase64Flag decodes an optional base64 flag value.
func parseBase64Flag(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, want standard base64: %w", name, err)
	}
	return raw, nil
}

// printJSON writes v as indented JSON.
func printJSON(out io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(raw))
	return err
}

// entryOutput is the rendered form of a decrypted secret entry.
type entryOutput struct {
	Name       string     `json:"name"`
	Version    uint64     `json:"version"`
	State      string     `json:"state"`
	Value      string     `json:"value"`
	Binary     bool       `json:"binary,omitempty"`
	UserData   string     `json:"user_data,omitempty"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	NotAfter   *time.Time `json:"not_after,omitempty"`
	Created    time.Time  `json:"created"`
	Modified   time.Time  `json:"modified"`
	CreatedBy  string     `json:"created_by,omitempty"`
	ModifiedBy string     `json:"modified_by,omitempty"`
	Comment    string     `json:"comment,omitempty"`
}

// renderEntry converts a decrypted entry for output. Binary values and user
// data are base64 encoded.
func renderEntry(entry *domain.SecretEntry) entryOutput {
	out := entryOutput{
		Name:       entry.Identifier.Name(),
		Version:    entry.Version,
		State:      string(entry.State),
		NotBefore:  entry.NotBefore,
		NotAfter:   entry.NotAfter,
		Created:    entry.Created,
		Modified:   entry.Modified,
		CreatedBy:  entry.CreatedBy,
		ModifiedBy: entry.ModifiedBy,
		Comment:    entry.Comment,
	}
	if entry.Value.Encoding == domain.ValueEncodingBinary {
		out.Value = base64.StdEncoding.EncodeToString(entry.Value.Data)
		out.Binary = true
	} else {
		out.Value = string(entry.Value.Data)
	}
	if len(entry.UserData) > 0 {
		out.UserData = base64.StdEncoding.EncodeToString(entry.UserData)
	}
	return out
}

// writeEntry outputs one entry in the requested format.
func writeEntry(out io.Writer, entry *domain.SecretEntry, format string) error {
	rendered := renderEntry(entry)
	if format == "json" {
		return printJSON(out, rendered)
	}
	fmt.Fprintf(out, "%s v%d [%s] %s\n", rendered.Name, rendered.Version, rendered.State, rendered.Value)
	if rendered.Comment != "" {
		fmt.Fprintf(out, "  comment: %s\n", rendered.Comment)
	}
	return nil
}

// writeEntries outputs a list of entries in the requested format.
func writeEntries(out io.Writer, entries []*domain.SecretEntry, format string) error {
	if format == "json" {
		rendered := make([]entryOutput, 0, len(entries))
		for _, entry := range entries {
			rendered = append(rendered, renderEntry(entry))
		}
		return printJSON(out, rendered)
	}
	for _, entry := range entries {
		if err := writeEntry(out, entry, format); err != nil {
			return err
		}
	}
	return nil
}

// shredAll shreds a batch of decrypted entries.
func shredAll(entries []*domain.SecretEntry) {
	for _, entry := range entries {
		entry.Shred()
	}
}
