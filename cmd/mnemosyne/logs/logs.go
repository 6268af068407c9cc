// Package logscmder provides the logs command for reading the server log.
package logscmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
)

type logsCommander struct {
	follow bool
	lines  int
}

const logsLongDesc string = `Print the JSON log written by "mnemosyne serve".

The log lives at <dotdir>/logs/mnemosyne.log. By default the last 50 lines
are printed; use --follow to keep printing as the server writes.

Examples:
  mnemosyne logs
  mnemosyne logs -n 200
  mnemosyne logs -f | jq .`

const logsShortDesc string = "Print the server log"

func NewLogsCmd() *cobra.Command {
	cmder := &logsCommander{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: logsShortDesc,
		Long:  logsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep printing new log lines")
	cmd.Flags().IntVarP(&cmder.lines, "lines", "n", 50, "Number of trailing lines to print (0 prints all)")

	return cmd
}

func (c *logsCommander) run(cmd *cobra.Command) error {
	path, err := dotdir.NewManager().LogPath(commoncmder.ConfigDir(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := tail(path, c.lines, out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no server log at %s: run \"mnemosyne serve\" first", path)
		}
		return err
	}

	if !c.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = followLog(ctx, path, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tail writes the last n lines of path. n <= 0 writes the whole file.
func tail(path string, n int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var ring []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring = append(ring, scanner.Text())
		if n > 0 && len(ring) > n {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading log file: %w", err)
	}

	for _, line := range ring {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// followLog writes everything appended to path after the call until ctx is
// done.
func followLog(ctx context.Context, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	buf := make([]byte, 4096)
	readAvailable := func() error {
		for {
			n, err := file.Read(buf)
			if n > 0 {
				if _, writeErr := out.Write(buf[:n]); writeErr != nil {
					return writeErr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := readAvailable(); err != nil {
				return err
			}
		case err := <-watcher.Errors:
			return fmt.Errorf("log watcher error: %w", err)
		}
	}
}
