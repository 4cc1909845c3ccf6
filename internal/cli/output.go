package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTags renders tags as sorted k=v pairs.
func formatTags(tags types.Tags) string {
	pairs := make([]string, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		pairs = append(pairs, k+"="+tags[k])
	}
	return strings.Join(pairs, ",")
}

func formatExpires(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// writeEntity prints one entity. Entities are JSON documents, so the text
// form is the same JSON.
func writeEntity(w io.Writer, e *types.Entity) error {
	return writeJSON(w, e)
}

func (a *app) writeList(w io.Writer, page *types.ListResult) error {
	if a.flags.jsonMode {
		return writeJSON(w, page)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tEXPIRES\tTAGS")
	for _, e := range page.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.EntityID, e.Version, formatExpires(e.Expires), formatTags(e.Tags))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.Next != "" {
		fmt.Fprintf(w, "next: %s\n", page.Next)
	}
	return nil
}

func (a *app) writeTags(w io.Writer, res *types.TagsResult) error {
	if a.flags.jsonMode {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "version: %d\n", res.Version)
	for _, k := range slices.Sorted(maps.Keys(res.Tags)) {
		fmt.Fprintf(w, "%s=%s\n", k, res.Tags[k])
	}
	return nil
}

func (a *app) writeWritten(w io.Writer, e *types.Entity) error {
	if a.flags.jsonMode {
		return writeJSON(w, e)
	}
	_, err := fmt.Fprintf(w, "%s %s version %d\n", e.EntityType, e.EntityID, e.Version)
	return err
}

// parseTags converts repeated k=v flag values into Tags.
func parseTags(pairs []string) (types.Tags, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(types.Tags, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w %q (expected key=value)", types.ErrInvalidTag, p)
		}
		tags[k] = v
	}
	return tags, nil
}
