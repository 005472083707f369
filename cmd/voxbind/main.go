package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"voxbind/internal/bootstrap"
	"voxbind/internal/config"
	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

var (
	usePreview bool
	duration   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "voxbind",
	Short:         "Headless speech recognition sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record from the microphone and print new utterances",
	RunE: func(cmd *cobra.Command, args []string) error {
		variant := bootstrap.VariantLive
		if usePreview {
			variant = bootstrap.VariantPreview
		}

		services, err := bootstrap.Build(variant, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer services.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		return listen(ctx, services.Recognizer, cmd.OutOrStdout())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Deepgram.APIKey != "" {
			cfg.Deepgram.APIKey = "<redacted>"
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	listenCmd.Flags().BoolVar(&usePreview, "preview", false, "Use the scripted preview recognizer instead of the microphone")
	listenCmd.Flags().DurationVar(&duration, "duration", 0, "Stop recording after this long (0 waits for Ctrl-C)")
	rootCmd.AddCommand(listenCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voxbind:", err)
		os.Exit(1)
	}
}

const stopTimeout = 5 * time.Second

var errNotAuthorized = errors.New("speech recognition is not authorized")

// listen authorizes, records until ctx is done or the session ends on its
// own, and prints every new utterance and status change to out.
func listen(ctx context.Context, recognizer ports.SpeechRecognizer, out io.Writer) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authorization := recognizer.AuthorizationStatus(streamCtx)
	utterances := recognizer.NewUtterances(streamCtx)
	statuses := recognizer.SessionStatus(streamCtx)

	recognizer.RequestAuthorization()
	select {
	case status, ok := <-authorization:
		if !ok {
			return errNotAuthorized
		}
		if status != domain.AuthorizationAuthorized {
			return fmt.Errorf("%w: %s", errNotAuthorized, status)
		}
	case <-ctx.Done():
		return nil
	}

	if err := recognizer.StartRecording(ctx); err != nil {
		return err
	}

	done := ctx.Done()
	var deadline <-chan time.Time
	for {
		select {
		case <-done:
			done = nil
			recognizer.StopRecording()
			deadline = time.After(stopTimeout)
		case <-deadline:
			return errors.New("timed out waiting for the session to stop")
		case text, ok := <-utterances:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "> %s\n", text)
		case status, ok := <-statuses:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "[%s]\n", status)
			if status == domain.SessionStatusStopped {
				return nil
			}
		}
	}
}
