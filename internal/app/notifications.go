package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const messagePreviewLen = 60

// ShowNotifications prints the most recent delivery audit rows.
func (a *App) ShowNotifications(ctx context.Context, opts NotificationsOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tStrategy\tSent At (UTC)\tSuccess\tReason\tMessage")

	for _, rec := range records {
		fmt.Fprintf(writer, "%d\t%d\t%s\t%t\t%s\t%s\n",
			rec.ID,
			rec.StrategyID,
			rec.SentAt.UTC().Format(time.RFC3339),
			rec.Success,
			sanitizeInline(rec.Reason),
			preview(rec.Message),
		)
	}

	return writer.Flush()
}

func preview(message string) string {
	cleaned := sanitizeInline(message)
	if len(cleaned) > messagePreviewLen {
		return cleaned[:messagePreviewLen] + "..."
	}
	return cleaned
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return strings.TrimSpace(cleaned)
}
