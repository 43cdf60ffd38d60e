package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"clipflow/config"
	"clipflow/format"
	"clipflow/job"
	"clipflow/models"

	"github.com/spf13/cobra"
)

func newClassifyCommand() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "classify [key...]",
		Short: "Report the transcoder input format of storage keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list || len(args) == 0 {
				for _, ext := range format.Supported() {
					tag, _ := format.Lookup(ext)
					fmt.Fprintf(out, "%-6s %s\n", ext, tag)
				}
				return nil
			}
			var unsupported int
			for _, key := range args {
				if tag, ok := format.Classify(key); ok {
					fmt.Fprintf(out, "%s\t%s\n", key, tag)
				} else {
					fmt.Fprintf(out, "%s\tunsupported\n", key)
					unsupported++
				}
			}
			if unsupported > 0 {
				return models.Invalid("classify", nil, "%d of %d keys unsupported", unsupported, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List every supported extension")
	return cmd
}

func newUploadCommand(conf func() *config.Config) *cobra.Command {
	return newStageCommand(conf, "upload [event.json]", "Submit a transcode job for an upload notification",
		stages{upload: true},
		func(cmd *cobra.Command, p *job.Pipeline, body []byte) (models.Outcome, error) {
			return p.HandleUpload(cmd.Context(), body)
		})
}

func newCompleteCommand(conf func() *config.Config) *cobra.Command {
	return newStageCommand(conf, "complete [event.json]", "Route a transcode completion notification",
		stages{completion: true},
		func(cmd *cobra.Command, p *job.Pipeline, body []byte) (models.Outcome, error) {
			return p.HandleCompletion(cmd.Context(), body)
		})
}

func newAnalyzeCommand(conf func() *config.Config) *cobra.Command {
	var kind string
	cmd := newStageCommand(conf, "analyze [event.json]", "Run one analyzer against a fan-out event",
		stages{analysis: true},
		func(cmd *cobra.Command, p *job.Pipeline, body []byte) (models.Outcome, error) {
			return p.HandleAnalysis(cmd.Context(), models.AnalyzerKind(kind), body)
		})
	cmd.Flags().StringVarP(&kind, "kind", "k", string(models.KindRekognition), "Analyzer kind: rekognition, transcribe or twelvelabs")
	return cmd
}

type stageRunner func(cmd *cobra.Command, p *job.Pipeline, body []byte) (models.Outcome, error)

// newStageCommand runs one pipeline stage on an event read from a file, or
// from stdin when no file is given, and prints the outcome as JSON.
func newStageCommand(conf func() *config.Config, use, short string, want stages, runStage stageRunner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readEventInput(cmd.InOrStdin(), args)
			if err != nil {
				return models.Invalid("event", err, "failed to read event")
			}

			closeStores, err := openStores()
			if err != nil {
				return err
			}
			defer closeStores()

			p, err := buildPipeline(cmd.Context(), conf(), want)
			if err != nil {
				return err
			}

			out, err := runStage(cmd, p, body)
			if err != nil {
				out = models.Failed(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(out); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func readEventInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}
