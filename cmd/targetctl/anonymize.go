package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/anonymizer"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const secretEnv = "ANONYMIZER_PSEUDONYM_SECRET"

var errMissingSecret = errors.New("pseudonym secret required (--secret or " + secretEnv + ")")

func newAnonymizeCommand() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Anonymize an analytics event read from stdin",
		Long: `Reads one analytics event as JSON from stdin, prints the anonymized
event and any fields the verifier still flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return errMissingSecret
			}
			return runAnonymize(cmd, secret)
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "pseudonymization secret")
	return cmd
}

func runAnonymize(cmd *cobra.Command, secret string) error {
	anon, err := anonymizer.New(secret)
	if err != nil {
		return err
	}

	var event domain.AnalyticsEvent
	if err = json.NewDecoder(cmd.InOrStdin()).Decode(&event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	violationsBefore := anon.Verify(event)
	cleaned := anon.Anonymize(event)
	violationsAfter := anon.Verify(cleaned)

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err = enc.Encode(cleaned); err != nil {
		return err
	}

	fmt.Fprintf(out, "flagged in input: %s\n", listOrNone(violationsBefore))
	fmt.Fprintf(out, "flagged after anonymization: %s\n", listOrNone(violationsAfter))

	if len(violationsAfter) > 0 {
		return fmt.Errorf("%w: %d field(s)", domain.ErrAnonymizationViolation, len(violationsAfter))
	}
	return nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
