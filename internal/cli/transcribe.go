package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fmueller/voxapi/internal/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type transcribeOptions struct {
	filename    string
	endpoint    string
	contentType string
	model       string
	timeout     time.Duration
}

func newTranscribeCmd(app *appState) *cobra.Command {
	opts := &transcribeOptions{}

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Send an audio file to a running voxapi server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.sendTranscription(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.filename, "filename", "outputs/example.wav", "Audio file to upload")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", client.DefaultEndpoint, "Transcription endpoint URL")
	cmd.Flags().StringVar(&opts.contentType, "content-type", client.DefaultContentType, "Content type of the uploaded file")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (server default when empty)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Request timeout")

	return cmd
}

func (a *appState) sendTranscription(cmd *cobra.Command, opts transcribeOptions) error {
	c := &client.Client{
		Endpoint:   opts.endpoint,
		HTTPClient: &http.Client{Timeout: opts.timeout},
		Logger:     a.log(),
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	resp, err := c.Transcribe(cmd.Context(), client.Request{
		FilePath:    opts.filename,
		ContentType: opts.contentType,
		Model:       opts.model,
	})
	stopSpinner()
	if err != nil {
		return err
	}

	a.log().Info("transcription response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", resp.Elapsed),
		zap.String("request_id", resp.RequestID),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.TrimSpace(string(resp.Body)))
	fmt.Fprintf(out, "time_total: %.3f\n", resp.Elapsed.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
