package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/reader"
)

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

// printResults prints every publication of a read: the cached copy first,
// then the refreshed one when the device is online.
func printResults[T any](ch <-chan reader.Result[T], show func(T)) error {
	var last reader.Result[T]
	for res := range ch {
		last = res
		if res.Err != nil {
			continue
		}
		label := res.Source.String()
		if res.Stale {
			label += ", may be out of date"
		}
		fmt.Printf("-- %s --\n", label)
		show(res.Value)
	}
	switch {
	case errors.Is(last.Err, apperr.ErrOfflineUnavailable):
		return fmt.Errorf("not available offline; connect once to download it")
	case errors.Is(last.Err, apperr.ErrAuthenticationRequired):
		return fmt.Errorf("not signed in; run 'studysync login'")
	}
	return last.Err
}

var decksCmd = &cobra.Command{
	Use:   "decks",
	Short: "List decks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResults(application.Reader.Decks(cmd.Context()), func(decks []domain.Deck) {
			if len(decks) == 0 {
				fmt.Println("No decks.")
			}
			for _, d := range decks {
				fmt.Printf("%6d  %-40s %-10s %d/%d studied\n", d.ID, d.Title, d.Status, d.StudiedCount, d.TotalCount)
			}
		})
	},
}

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards <deck-id>",
	Short: "List the flashcards of a deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deckID, err := parseID(args[0], "deck id")
		if err != nil {
			return err
		}
		return printResults(application.Reader.Flashcards(cmd.Context(), deckID), func(cards []domain.Flashcard) {
			for _, c := range cards {
				fmt.Printf("[%d] %s\n      %s\n", c.ID, c.Front, c.Back)
			}
		})
	},
}

var showAnswers bool

var quizCmd = &cobra.Command{
	Use:   "quiz <document-id>",
	Short: "Show the quiz of a deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, err := parseID(args[0], "document id")
		if err != nil {
			return err
		}
		err = printResults(application.Reader.Quiz(cmd.Context(), documentID), func(q *domain.Quiz) {
			fmt.Printf("Quiz %d: %s\n", q.ID, q.Title)
			for i, question := range q.Questions {
				fmt.Printf("\n%d. %s (question %d)\n", i+1, question.Text, question.ID)
				for _, a := range question.Answers {
					mark := " "
					if showAnswers && a.IsCorrect {
						mark = "*"
					}
					fmt.Printf("  %s [%d] %s\n", mark, a.ID, a.Text)
				}
			}
		})
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("deck %d has no quiz", documentID)
		}
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <question-id> <answer-id>",
	Short: "Check an answer with the service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionID, err := parseID(args[0], "question id")
		if err != nil {
			return err
		}
		answerID, err := parseID(args[1], "answer id")
		if err != nil {
			return err
		}
		res, err := application.Remote.CheckAnswer(cmd.Context(), questionID, answerID)
		if err != nil {
			return err
		}
		if res.IsCorrect {
			fmt.Println("✓ Correct")
		} else {
			fmt.Printf("✗ Incorrect, the answer is %d\n", res.CorrectAnswerID)
		}
		if res.Explanation != "" {
			fmt.Println(res.Explanation)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <document-id>",
	Short: "Show study statistics for a deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, err := parseID(args[0], "document id")
		if err != nil {
			return err
		}
		stats, err := application.Remote.DeckStats(cmd.Context(), documentID)
		if err != nil {
			return err
		}
		fc := stats.Flashcards
		fmt.Printf("Flashcards: %d known, %d learning, %d total (%.0f%%)\n", fc.Known, fc.Learning, fc.Total, fc.ProgressPercentage)
		q := stats.Quiz
		fmt.Printf("Quiz:       %d attempts", q.TotalAttempts)
		if q.LastScore != nil {
			fmt.Printf(", last %.0f", *q.LastScore)
		}
		if q.AverageScore != nil {
			fmt.Printf(", average %.1f", *q.AverageScore)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	quizCmd.Flags().BoolVar(&showAnswers, "answers", false, "Mark the correct answers")
	rootCmd.AddCommand(decksCmd, flashcardsCmd, quizCmd, checkCmd, statsCmd)
}
