package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/aretw0/moments/internal/presentation/tui"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
)

// DraftEntry pairs a draft key with its record.
type DraftEntry struct {
	Key    domain.DraftKey
	Record domain.DraftRecord
	Err    error
}

// ListDrafts loads every draft, newest first. Unreadable drafts are kept with their error.
func ListDrafts(ctx context.Context, repo *draft.Repository) ([]DraftEntry, error) {
	keys, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	out := make([]DraftEntry, 0, len(keys))
	for _, key := range keys {
		e := DraftEntry{Key: key}
		rec, err := repo.Load(ctx, key)
		if err != nil {
			e.Err = err
		} else {
			e.Record = *rec
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.SavedAt.After(out[j].Record.SavedAt)
	})
	return out, nil
}

// PrintDrafts writes entries as an aligned table.
// Drafts older than threshold are marked stale; they are dropped on the next session start.
func PrintDrafts(w io.Writer, entries []DraftEntry, now time.Time, threshold time.Duration) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No drafts found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tMEDIA\tSAVED\tAGE\tBY\tSIZE\tSTATUS")
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t%s\n", e.Key.UserID, e.Key.MediaType, tui.Status("unreadable", false))
			continue
		}
		age := e.Record.Age(now)
		status := tui.Status("fresh", true)
		if e.Record.SavedAt.IsZero() || age >= threshold {
			status = tui.Status("stale", false)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Key.UserID, e.Key.MediaType,
			e.Record.SavedAt.Format(time.RFC3339), age.Round(time.Second),
			e.Record.SavedBy, e.Record.ByteSize, status)
	}
	return tw.Flush()
}

// InspectDraft renders one draft. With render set the markdown goes through glamour.
func InspectDraft(ctx context.Context, w io.Writer, repo *draft.Repository, key domain.DraftKey, now time.Time, preview int, render func(string) (string, error)) error {
	rec, err := repo.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load draft %s: %w", key, err)
	}
	md := tui.DraftMarkdown(key, *rec, now, preview)
	if render != nil {
		if out, err := render(md); err == nil {
			md = out
		}
	}
	_, err = io.WriteString(w, md)
	return err
}
