package main

import (
	"context"
	"errors"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

var (
	feedbackSubmitter      string
	feedbackRole           string
	feedbackType           string
	feedbackText           string
	feedbackQuality        int
	feedbackHelpfulness    int
	feedbackEase           int
	feedbackSubmissionID   string
	feedbackSubmissionType string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record feedback on generated output",
	Long: `Append a feedback event for later export as training data.

Example:
  vocab feedback --submitter u-17 --role clinician --quality 4 --submission-id s-9
  vocab feedback --submitter u-17 --type bug --text "summary cut off"`,
	RunE: runFeedback,
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackSubmitter, "submitter", "", "Submitter ID (required)")
	f.StringVar(&feedbackRole, "role", "", "Submitter role")
	f.StringVarP(&feedbackType, "type", "t", "", "general, suggestion, correction, bug or praise")
	f.StringVar(&feedbackText, "text", "", "Free-text feedback")
	f.IntVar(&feedbackQuality, "quality", 0, "Quality rating 1-5")
	f.IntVar(&feedbackHelpfulness, "helpfulness", 0, "Helpfulness rating 1-5")
	f.IntVar(&feedbackEase, "ease", 0, "Ease-of-use rating 1-5")
	f.StringVar(&feedbackSubmissionID, "submission-id", "", "Submission the feedback refers to")
	f.StringVar(&feedbackSubmissionType, "submission-type", "", "Kind of submission")
	_ = feedbackCmd.MarkFlagRequired("submitter")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ok := svc.RecordFeedback(context.Background(), vocab.FeedbackEvent{
		SubmitterID:    feedbackSubmitter,
		SubmitterRole:  feedbackRole,
		FeedbackType:   vocab.FeedbackType(feedbackType),
		Text:           feedbackText,
		Ratings:        vocab.Ratings{Quality: feedbackQuality, Helpfulness: feedbackHelpfulness, Ease: feedbackEase},
		SubmissionID:   feedbackSubmissionID,
		SubmissionType: feedbackSubmissionType,
	})
	if !ok {
		return errors.New("feedback was not recorded (see log for details)")
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]bool{"recorded": true})
	}
	printSuccess(cmd.OutOrStdout(), "Feedback recorded")
	return nil
}
