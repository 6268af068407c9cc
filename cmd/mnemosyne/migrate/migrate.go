// Package migratecmder provides the migrate command, which keeps the memory
// collection's embedding width in step with the configured embedder.
package migratecmder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
)

type migrateCommander struct {
	force   bool
	restore string

	workers   int
	backupDir string

	cfg    *config.Config
	logger *slog.Logger
}

const migrateLongDesc string = `Migrate the memory collection to the configured embedding model.

The embedder is probed for its output width and compared with the
collection:

  - missing collection: it is created with the new width
  - same width: nothing to do
  - different width: every record is exported to a backup file, the
    collection is dropped and recreated, and each memory is re-embedded

A width change is destructive and needs --force. The backup is written to
<dotdir>/backups (or --backup-dir) before anything is dropped; use --restore
to re-embed a backup into the collection.

Examples:
  mnemosyne migrate
  mnemosyne migrate --embedding-model mxbai-embed-large --force
  mnemosyne migrate --restore ~/.mnemosyne/backups/memories_768_to_1024_1718000000.json`

const migrateShortDesc string = "Migrate memories to the configured embedding model"

var migrateFlagKeys = append([]string{config.FlagWorkers, config.FlagBackupDir}, commoncmder.StackFlagKeys...)

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, migrateFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.logger = commoncmder.NewLogger(cmd)
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Confirm a destructive rebuild when the embedding width changed")
	cmd.Flags().StringVar(&cmder.restore, "restore", "", "Re-embed the records of a backup file instead of migrating")
	config.AddIntFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackupDir, &cmder.backupDir)
	commoncmder.AddStackFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("force", "restore")

	return cmd
}

func (c *migrateCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	bar := newProgressPrinter(os.Stderr, cliui.IsTerminal(os.Stderr))

	var report *migrate.Report
	if c.restore != "" {
		report, err = st.Service.Restore(ctx, c.restore, bar.update)
	} else {
		report, err = st.Service.Migrate(ctx, c.force, bar.update)
	}
	bar.done()

	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}
	if report.Status == migrate.StatusNeedsConfirmation {
		return fmt.Errorf("embedding width changed from %d to %d: re-run with --force", report.OldDimension, report.NewDimension)
	}
	if report.Partial() {
		return fmt.Errorf("%d of %d records could not be re-embedded", report.Failed, report.Exported)
	}
	return nil
}

// progressPrinter redraws a single progress line on a terminal and prints
// nothing otherwise.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	drawn   bool
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{w: w, enabled: enabled}
}

func (p *progressPrinter) update(pr migrate.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\r  %s %d/%d  %s %d  %s %d",
		cliui.ProgressBar(pr.Done, pr.Total, 30),
		pr.Done, pr.Total,
		cliui.SuccessMark, pr.Succeeded,
		cliui.FailMark, pr.Failed,
	)
	p.drawn = true
}

func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
	}
}

func printReport(w io.Writer, r *migrate.Report) {
	fmt.Fprintln(w)
	switch r.Status {
	case migrate.StatusCreated:
		fmt.Fprintf(w, "  %s Created collection %s with width %d\n",
			cliui.SuccessMark, cliui.KeyStyle.Render(r.Collection), r.NewDimension)
	case migrate.StatusUpToDate:
		fmt.Fprintf(w, "  %s Collection %s is up to date (width %d)\n",
			cliui.SuccessMark, cliui.KeyStyle.Render(r.Collection), r.NewDimension)
	case migrate.StatusNeedsConfirmation:
		fmt.Fprintf(w, "  %s %s\n", cliui.WarnMark, cliui.WarnStyle.Render(fmt.Sprintf(
			"Collection %s has width %d but the embedder produces %d.", r.Collection, r.OldDimension, r.NewDimension)))
		fmt.Fprintf(w, "    Every memory will be re-embedded. Confirm with:\n\n      %s\n", cliui.KeyStyle.Render(r.Hint))
	case migrate.StatusCompleted, migrate.StatusRestored:
		verb := "Migrated"
		if r.Status == migrate.StatusRestored {
			verb = "Restored"
		}
		mark := cliui.SuccessMark
		if r.Partial() {
			mark = cliui.WarnMark
		}
		fmt.Fprintf(w, "  %s %s %s: %d re-embedded, %d failed in %s\n",
			mark, verb, cliui.KeyStyle.Render(r.Collection),
			r.Succeeded, r.Failed, cliui.FormatDuration(r.Duration))
		if r.OldDimension > 0 {
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(fmt.Sprintf("width %d → %d", r.OldDimension, r.NewDimension)))
		}
		if r.BackupPath != "" {
			fmt.Fprintf(w, "    %s %s\n", cliui.DimStyle.Render("backup:"), r.BackupPath)
		}
		for _, f := range r.Failures {
			fmt.Fprintf(w, "    %s %s %s\n", cliui.FailMark, f.RecordID, cliui.DimStyle.Render(f.Reason))
		}
	}
	fmt.Fprintln(w)
}
