package cmd

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/sim"
)

// newRunCmd creates the 'run' subcommand, a terminal-only migration run that
// needs no HTTP server or stores.
func newRunCmd() *cobra.Command {
	var (
		batches int
		records int
		tickMs  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single migration in the terminal",
		Long: `Runs one migration in the foreground and renders its progress on
stdout. Type "p" to pause or resume and "q" to stop early.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := sim.Config{
				TotalBatches:    batches,
				RecordsPerBatch: records,
				TickInterval:    time.Duration(tickMs) * time.Millisecond,
			}
			return runConsoleMigration(cmd, cfg)
		},
	}
	cmd.Flags().IntVar(&batches, "batches", 12, "number of batches to migrate")
	cmd.Flags().IntVar(&records, "records", 100, "records per batch")
	cmd.Flags().IntVar(&tickMs, "tick", 100, "milliseconds per record")
	return cmd
}

func runConsoleMigration(cmd *cobra.Command, cfg sim.Config) error {
	out := cmd.OutOrStdout()
	done := make(chan struct{})
	notifier := &consoleNotifier{out: out, done: done}
	render := &consoleSink{out: out}
	cue := bellCue{out: out}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctrl := sim.NewController(cfg, sim.TickerScheduler{}, render, notifier, cue, rng, zap.NewNop())

	// The migration autostarts three idle ticks after launch, long enough to
	// read the controls line.
	startDelay := 3 * cfg.TickInterval
	fmt.Fprintf(out, "Starting in %s. Type \"p\" to pause, \"q\" to quit.\n", startDelay)
	select {
	case <-time.After(startDelay):
	case <-cmd.Context().Done():
		return nil
	}
	ctrl.Start()

	go readConsoleKeys(cmd.InOrStdin(), out, ctrl)

	select {
	case <-done:
	case <-cmd.Context().Done():
		ctrl.Stop()
		<-done
	}
	fmt.Fprintln(out)
	return nil
}

func readConsoleKeys(in io.Reader, out io.Writer, ctrl *sim.Controller) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "p":
			if ctrl.TogglePause() {
				fmt.Fprint(out, "\nPaused. Type \"p\" to resume.\n")
			} else {
				fmt.Fprint(out, "\nResumed.\n")
			}
		case "q":
			ctrl.Stop()
			return
		}
	}
}

// consoleSink renders progress as a single status line rewritten in place.
type consoleSink struct {
	out io.Writer
}

func (c *consoleSink) RenderProgress(s sim.Snapshot) {
	fmt.Fprintf(c.out, "\rBatch %d/%d  record %d/%d  %5.1f%%  %d rec/s  ETA %ss ",
		s.CurrentBatch+1, s.TotalBatches, s.CurrentRecord, s.TotalRecords,
		s.RecordPercent, s.Speed, s.ETA)
}

func (c *consoleSink) MarkBatchCompleted(index int) {
	fmt.Fprintf(c.out, "\nBatch %d completed\n", index+1)
}

func (c *consoleSink) ShowBatchDetails(index int, status string) {
	fmt.Fprintf(c.out, "\nBatch %d: %s\n", index+1, status)
}

func (c *consoleSink) AppendLog(string) {}

type consoleNotifier struct {
	out  io.Writer
	done chan struct{}
}

func (n *consoleNotifier) Notify(notice sim.Notice) {
	fmt.Fprintf(n.out, "\n%s\n", notice.Text)
	if notice.Kind == sim.NoticeComplete || notice.Kind == sim.NoticeStopped {
		select {
		case <-n.done:
		default:
			close(n.done)
		}
	}
}

// bellCue rings the terminal bell. Write errors are reported so the caller
// can log and move on.
type bellCue struct {
	out io.Writer
}

func (b bellCue) PlayCue() error {
	if _, err := fmt.Fprint(b.out, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}
