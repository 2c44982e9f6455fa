package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/generation"
	"github.com/conorfennell/studysync/internal/remote"
)

type generateFlags struct {
	title         string
	flashcards    bool
	quiz          bool
	numFlashcards int
	numQuestions  int
	difficulty    string
	contentType   string
	folder        int64
	wait          bool
}

func (f *generateFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.title, "title", "", "Deck title")
	flags.BoolVar(&f.flashcards, "flashcards", true, "Generate flashcards")
	flags.BoolVar(&f.quiz, "quiz", false, "Generate a quiz")
	flags.IntVar(&f.numFlashcards, "num-flashcards", 10, "Number of flashcards to generate")
	flags.IntVar(&f.numQuestions, "num-questions", 5, "Number of quiz questions to generate")
	flags.StringVar(&f.difficulty, "difficulty", "medium", "Difficulty (easy, medium, hard)")
	flags.StringVar(&f.contentType, "content-type", "general", "Kind of material")
	flags.Int64Var(&f.folder, "folder", 0, "Folder to file the deck under")
	flags.BoolVar(&f.wait, "wait", false, "Follow processing until it finishes")
}

func (f *generateFlags) options() remote.GenerationOptions {
	return remote.GenerationOptions{
		Title:              f.title,
		NumFlashcards:      f.numFlashcards,
		Difficulty:         f.difficulty,
		GenerateFlashcards: f.flashcards,
		GenerateQuizzes:    f.quiz,
		ContentType:        f.contentType,
		NumQuestions:       f.numQuestions,
		FolderID:           f.folder,
	}
}

func (f *generateFlags) plan() generation.Plan {
	return generation.Plan{Flashcards: f.flashcards, Quizzes: f.quiz}
}

// explainLimit turns a quota rejection into a message naming the reset time.
func explainLimit(err error) error {
	var limit *apperr.LimitError
	if errors.As(err, &limit) {
		return fmt.Errorf("daily generation limit reached (%d of %d used); resets in %d hours",
			limit.Used, limit.Limit, limit.HoursUntilReset)
	}
	if errors.Is(err, apperr.ErrQuotaExceeded) {
		return fmt.Errorf("daily generation limit reached")
	}
	return err
}

// follow tracks a job and prints every step change.
func follow(cmd *cobra.Command, documentID int64, plan generation.Plan) error {
	fmt.Printf("Processing document %d...\n", documentID)
	status, err := application.Track(cmd.Context(), documentID, plan, func(s generation.Status) {
		if s.Phase == generation.PhaseProcessing && s.StepIndex >= 0 {
			fmt.Printf("  [%d/%d] %s\n", s.StepIndex+1, s.StepCount, s.Step)
		}
	})
	if err != nil {
		return err
	}
	switch status.Phase {
	case generation.PhaseCompleted:
		fmt.Println("✓ Done")
	case generation.PhaseFailed:
		return fmt.Errorf("processing failed: %s", status.Reason)
	case generation.PhaseCancelled:
		return fmt.Errorf("processing was cancelled")
	}
	return nil
}

func ensureQuota(cmd *cobra.Command) {
	if err := application.Guard.Refresh(cmd.Context()); err != nil {
		application.Logger.Debug("Failed to refresh generation limit", "error", err)
	}
}

var uploadFlags generateFlags

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document and generate study material from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		ensureQuota(cmd)
		doc, err := application.Generator.Upload(cmd.Context(), filepath.Base(args[0]), f, uploadFlags.options())
		if err != nil {
			return explainLimit(err)
		}
		fmt.Printf("✓ Uploaded as document %d\n", doc.ID)
		if uploadFlags.wait {
			return follow(cmd, doc.ID, uploadFlags.plan())
		}
		return nil
	},
}

var createFlags generateFlags

var createCmd = &cobra.Command{
	Use:   "create [text]",
	Short: "Create a deck from text (reads stdin when no text is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read text: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no text given")
		}

		ensureQuota(cmd)
		doc, err := application.Generator.FromText(cmd.Context(), text, createFlags.options())
		if err != nil {
			return explainLimit(err)
		}
		fmt.Printf("✓ Created document %d\n", doc.ID)
		if createFlags.wait {
			return follow(cmd, doc.ID, createFlags.plan())
		}
		return nil
	},
}

var (
	generateQuiz bool
	generateWait bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <document-id>",
	Short: "Generate more flashcards, or a quiz, for an existing deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, err := parseID(args[0], "document id")
		if err != nil {
			return err
		}
		ensureQuota(cmd)
		plan := generation.Plan{Flashcards: !generateQuiz, Quizzes: generateQuiz}
		if generateQuiz {
			err = application.Generator.Quiz(cmd.Context(), documentID)
		} else {
			err = application.Generator.Flashcards(cmd.Context(), documentID)
		}
		if err != nil {
			return explainLimit(err)
		}
		fmt.Println("✓ Generation started")
		if generateWait {
			return follow(cmd, documentID, plan)
		}
		return nil
	},
}

var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Show the daily generation limit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Guard.Refresh(cmd.Context()); err != nil {
			return err
		}
		q, _ := application.Guard.Quota()
		fmt.Printf("Used %s of %s generations today, %s remaining.\n",
			humanize.Comma(int64(q.Used)), humanize.Comma(int64(q.Limit)), humanize.Comma(int64(q.Remaining)))
		if q.Remaining <= 0 {
			fmt.Printf("Resets in %d hours.\n", q.HoursUntilReset)
		}
		return nil
	},
}

func init() {
	uploadFlags.register(uploadCmd.Flags())
	createFlags.register(createCmd.Flags())
	generateCmd.Flags().BoolVar(&generateQuiz, "quiz", false, "Generate a quiz instead of flashcards")
	generateCmd.Flags().BoolVar(&generateWait, "wait", false, "Follow processing until it finishes")
	rootCmd.AddCommand(uploadCmd, createCmd, generateCmd, limitCmd)
}
