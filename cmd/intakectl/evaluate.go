package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"carepay/internal/identity/models"
	"carepay/internal/verification"
)

type evaluateOutput struct {
	DocumentType string   `json:"document_type"`
	Status       string   `json:"status"`
	Confidence   int      `json:"confidence"`
	Issues       []string `json:"issues"`
}

func evaluateCmd() *cobra.Command {
	var (
		docType   string
		fieldsArg string
		rulesFile string
		asOf      string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score extracted fields against the verification rules",
		Long: `Score a set of extracted fields offline, for checking rule changes.

Examples:
  intakectl evaluate --type passport --fields '{"passport_number":"X1","expiration_date":"2031-04-01"}'
  intakectl evaluate --type drivers_license --fields @fields.json --rules rules.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readFieldsArg(fieldsArg, cmd.InOrStdin())
			if err != nil {
				return err
			}
			now := time.Now()
			if asOf != "" {
				now, err = time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
			}
			return runEvaluate(cmd.OutOrStdout(), docType, raw, rulesFile, now)
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type")
	cmd.Flags().StringVarP(&fieldsArg, "fields", "f", "{}", "fields as JSON, @file, or - for stdin")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule overrides")
	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate as of this date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func readFieldsArg(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case len(arg) > 0 && arg[0] == '@':
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}

func runEvaluate(out io.Writer, docTypeArg string, rawFields []byte, rulesFile string, now time.Time) error {
	docType, err := models.ParseDocumentType(docTypeArg)
	if err != nil {
		return err
	}
	var fields models.ExtractedFields
	if err := json.Unmarshal(rawFields, &fields); err != nil {
		return fmt.Errorf("fields must be a JSON object of strings: %w", err)
	}

	var opts []verification.Option
	if rulesFile != "" {
		rules, err := verification.LoadRules(rulesFile)
		if err != nil {
			return err
		}
		opts = append(opts, verification.WithRules(rules))
	}
	result := verification.NewEngine(opts...).Evaluate(docType, fields, now)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(evaluateOutput{
		DocumentType: docType.String(),
		Status:       result.Status.String(),
		Confidence:   result.Confidence,
		Issues:       result.Issues,
	})
}
