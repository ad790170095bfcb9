package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	tkstrings "github.com/giantswarm/tokenkit/pkg/strings"
	"github.com/giantswarm/tokenkit/pkg/token"
)

// newListCmd creates the command that lists cached tokens.
func newListCmd() *cobra.Command {
	var noHeaders bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached tokens",
		Long: `List the tokens in the cache. Token values are never printed; use the
HASH column with "tokenkit delete".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			infos, err := token.List(store)
			if err != nil {
				return err
			}
			renderTokenTable(cmd.OutOrStdout(), infos, time.Now(), noHeaders)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit the header row")
	return cmd
}

func renderTokenTable(w io.Writer, infos []*token.Info, now time.Time, noHeaders bool) {
	if len(infos) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No cached tokens"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if !noHeaders {
		t.AppendHeader(table.Row{
			text.FgHiCyan.Sprint("HASH"),
			text.FgHiCyan.Sprint("AUTH TYPE"),
			text.FgHiCyan.Sprint("TENANT"),
			text.FgHiCyan.Sprint("TARGET"),
			text.FgHiCyan.Sprint("CLIENT"),
			text.FgHiCyan.Sprint("STATUS"),
			text.FgHiCyan.Sprint("REFRESH"),
		})
	}
	for _, info := range infos {
		target := info.Resource
		if len(info.Scopes) > 0 {
			target = strings.Join(info.Scopes, " ")
		}
		target = tkstrings.TruncateMiddle(target, tkstrings.DefaultColumnMaxLen)
		client := info.ClientID
		if info.Username != "" {
			client = info.Username + " (" + info.ClientID + ")"
		}
		refresh := text.FgHiBlack.Sprint("no")
		if info.Refresh {
			refresh = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{info.Hash, info.AuthType, info.Tenant, target, client, formatStatus(info, now), refresh})
	}
	t.Render()
}

func formatStatus(info *token.Info, now time.Time) string {
	switch {
	case info.Expiry.IsZero():
		return text.FgHiBlack.Sprint("no expiry")
	case info.Valid:
		return text.FgGreen.Sprint("valid, expires in " + formatDuration(info.Expiry.Sub(now)))
	default:
		return text.FgYellow.Sprint("expired " + formatDuration(now.Sub(info.Expiry)) + " ago")
	}
}

// formatDuration renders d at the coarsest sensible unit.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
