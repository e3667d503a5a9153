package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/interview"
	"github.com/prepstand/interviewd/internal/logger"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a mock interview interactively in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		practice(cmd)
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().IntP("turns", "t", 3, "number of questions to ask")
}

func practice(cmd *cobra.Command) {
	ctx := context.Background()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		zlog.Fatal("config is required")
	}

	interviewer, err := newInterviewer(ctx, config.AI, zlog)
	if err != nil {
		zlog.Fatal("building the interviewer", zap.Error(err))
	}

	registry, orchestrator := buildCore(config.Interview, interviewer, zlog)

	rolePrompt := promptui.Prompt{Label: "Target role"}
	role, err := rolePrompt.Run()
	if err != nil {
		zlog.Fatal("exiting", zap.Error(err))
	}

	difficultyPrompt := promptui.Select{
		Label: "Difficulty",
		Items: []string{interview.DifficultyEasy, interview.DifficultyMedium, interview.DifficultyHard},
	}
	_, difficulty, err := difficultyPrompt.Run()
	if err != nil {
		zlog.Fatal("exiting", zap.Error(err))
	}

	sectorPrompt := promptui.Select{
		Label: "Sector",
		Items: []string{"engineering", "business", "health", "other"},
	}
	_, sector, err := sectorPrompt.Run()
	if err != nil {
		zlog.Fatal("exiting", zap.Error(err))
	}
	if sector == "other" {
		sector = ""
	}

	turns, _ := cmd.Flags().GetInt("turns")
	if turns <= 0 {
		turns = 3
	}

	session := registry.Create(interview.Params{
		Role:       role,
		Sector:     sector,
		Difficulty: difficulty,
		MaxTurns:   turns,
	})
	defer registry.Remove(session.ID())

	question, err := orchestrator.Begin(session)
	if err != nil {
		zlog.Fatal("starting the interview", zap.Error(err))
	}

	for turn := 1; ; turn++ {
		fmt.Printf("\nQuestion %d/%d:\n%s\n\n", turn, turns, question)

		answerPrompt := promptui.Prompt{Label: "Your answer"}
		answer, err := answerPrompt.Run()
		if err != nil {
			zlog.Fatal("exiting", zap.Error(err))
		}

		outcome, err := orchestrator.SubmitAnswer(session, answer)
		if err != nil {
			if interview.IsValidation(err) {
				fmt.Printf("rejected: %s\n", err)
				turn--
				continue
			}
			zlog.Fatal("scoring the answer", zap.Error(err))
		}

		printAssessment(outcome)

		if outcome.Completed {
			printReport(outcome.Report)
			return
		}

		question = outcome.NextQuestion
	}
}

func printAssessment(outcome *interview.AnswerOutcome) {
	assessment := outcome.Assessment
	if assessment == nil {
		return
	}

	fmt.Printf("\nScore: %.0f/100", assessment.Score)
	if assessment.Competency != "" {
		fmt.Printf(" (%s)", assessment.Competency)
	}
	fmt.Println()

	if assessment.Feedback != "" {
		fmt.Println(assessment.Feedback)
	}
	if len(assessment.Strengths) > 0 {
		fmt.Printf("Strengths: %s\n", strings.Join(assessment.Strengths, "; "))
	}
	if len(assessment.Improvements) > 0 {
		fmt.Printf("Improve: %s\n", strings.Join(assessment.Improvements, "; "))
	}
}

func printReport(report *interview.Report) {
	if report == nil {
		return
	}

	fmt.Printf("\n--- Final report ---\n")
	fmt.Printf("Overall score: %.0f/100 over %d turns\n", report.OverallScore, report.ScoredTurns)
	for competency, score := range report.Competencies {
		fmt.Printf("  %s: %.0f\n", competency, score)
	}
	fmt.Printf("\n%s\n", report.Summary)
}
