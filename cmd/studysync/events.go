package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	ssync "github.com/conorfennell/studysync/internal/sync"
	"github.com/conorfennell/studysync/internal/web"
)

// accuracyNames are the three review outcomes a study log records.
var accuracyNames = map[string]float64{
	"forgot":  0,
	"partial": 0.5,
	"knew":    1,
}

func parseAccuracy(s string) (float64, error) {
	if v, ok := accuracyNames[s]; ok {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid accuracy %q: use forgot, partial, knew or a number in [0,1]", s)
	}
	return v, nil
}

var studyCmd = &cobra.Command{
	Use:   "study <flashcard-id> <forgot|partial|knew>",
	Short: "Record a flashcard review",
	Long:  `Stores the review locally. It is delivered now when online, otherwise on the next sync.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flashcardID, err := parseID(args[0], "flashcard id")
		if err != nil {
			return err
		}
		accuracy, err := parseAccuracy(args[1])
		if err != nil {
			return err
		}
		log, err := application.Recorder.RecordStudyLog(cmd.Context(), flashcardID, accuracy)
		if err != nil {
			return err
		}
		application.Coordinator.Wait()
		fmt.Printf("✓ Recorded review %d\n", log.LocalID)
		printPending()
		return nil
	},
}

var attemptCmd = &cobra.Command{
	Use:   "attempt <quiz-id> <score> <correct> <total>",
	Short: "Record a finished quiz",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		quizID, err := parseID(args[0], "quiz id")
		if err != nil {
			return err
		}
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid score %q", args[1])
		}
		correct, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid correct count %q", args[2])
		}
		total, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid total %q", args[3])
		}
		attempt, err := application.Recorder.RecordQuizAttempt(cmd.Context(), quizID, score, correct, total)
		if err != nil {
			return err
		}
		application.Coordinator.Wait()
		fmt.Printf("✓ Recorded attempt %d\n", attempt.LocalID)
		printPending()
		return nil
	},
}

func printPending() {
	if n := application.Monitor.State().Pending; n > 0 {
		fmt.Printf("%s events waiting to sync.\n", humanize.Comma(int64(n)))
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver unsynced study events now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Coordinator.Sync(cmd.Context())
		switch {
		case errors.Is(err, ssync.ErrOffline):
			return fmt.Errorf("offline; events will be delivered when the network returns")
		case err != nil:
			return err
		}
		fmt.Printf("Delivered %s, failed %s.\n", humanize.Comma(int64(report.Delivered)), humanize.Comma(int64(report.Failed)))
		printPending()
		return nil
	},
}

var listenAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync in the background until interrupted",
	Long: `Watches the network and delivers pending events when it returns, plus
a periodic pass. With --listen, also serves a local JSON API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application
		ctx := cmd.Context()
		if a.Monitor.IsOnline() {
			a.Coordinator.Trigger(ctx)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return a.Watch(ctx) })

		if listenAddr != "" {
			srv := &http.Server{
				Addr:              listenAddr,
				Handler:           web.NewServer(a.Monitor, a.Coordinator, a.Recorder, a.Reader, a.Logger.With("component", "web")),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			g.Go(func() error {
				a.Logger.Info("Serving local API", "addr", listenAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		fmt.Println("Watching for network changes. Press Ctrl+C to stop.")
		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the local JSON API on this address (e.g. 127.0.0.1:4100)")
	rootCmd.AddCommand(studyCmd, attemptCmd, syncCmd, watchCmd)
}
