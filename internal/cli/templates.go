package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/templates"
)

var (
	tmplTarget      string
	tmplFrom        string
	tmplContent     string
	tmplTitle       string
	tmplDescription string
	tmplImage       string
)

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesAddCmd)
	templatesCmd.AddCommand(templatesRmCmd)
	templatesCmd.AddCommand(templatesClearCmd)

	f := templatesAddCmd.Flags()
	f.StringVar(&tmplTarget, "target", "", "Target channel ID (required)")
	f.StringVar(&tmplFrom, "from", "", "Author ID recorded with the template (required; never sent)")
	f.StringVar(&tmplContent, "content", "", "Message content (required)")
	f.StringVar(&tmplTitle, "embed-title", "", "Optional embed title")
	f.StringVar(&tmplDescription, "embed-description", "", "Optional embed description")
	f.StringVar(&tmplImage, "embed-image", "", "Optional embed image URL")
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage saved message templates",
	Long:  "Templates are stored in the SQLite database named by templates_db.",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a template",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesAdd,
}

var templatesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesRm,
}

var templatesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every template",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesClear,
}

// withTemplates opens the configured database for the duration of fn.
func withTemplates(fn func(*templates.Cache) error) error {
	kv, err := templates.OpenKV(cfg.TemplatesDB)
	if err != nil {
		return err
	}
	defer kv.Close()
	return fn(templates.NewCache(kv))
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	return withTemplates(func(c *templates.Cache) error {
		list, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No templates saved.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTARGET\tFROM\tCONTENT\tEMBED\tSAVED")
		now := time.Now()
		for _, t := range list {
			embed := "-"
			if t.EmbedTitle != "" {
				embed = t.EmbedTitle
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Target, t.From, clip(t.Content, 40), clip(embed, 20),
				humanize.RelTime(t.Timestamp, now, "ago", "from now"))
		}
		return tw.Flush()
	})
}

func runTemplatesAdd(cmd *cobra.Command, args []string) error {
	return withTemplates(func(c *templates.Cache) error {
		saved, err := c.Save(cmd.Context(), templates.Template{
			Target:           tmplTarget,
			From:             tmplFrom,
			Content:          tmplContent,
			EmbedTitle:       tmplTitle,
			EmbedDescription: tmplDescription,
			EmbedImageURL:    tmplImage,
		})
		if err != nil {
			return err
		}
		logger.Debugw("template saved", "id", saved.ID, "db", cfg.TemplatesDB)
		fmt.Fprintf(cmd.OutOrStdout(), "Saved template %s\n", saved.ID)
		return nil
	})
}

func runTemplatesRm(cmd *cobra.Command, args []string) error {
	return withTemplates(func(c *templates.Cache) error {
		if err := c.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", args[0])
		return nil
	})
}

func runTemplatesClear(cmd *cobra.Command, args []string) error {
	return withTemplates(func(c *templates.Cache) error {
		if err := c.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All templates cleared.")
		return nil
	})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

