package main

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/bosley/relayscribe/client"
	"github.com/bosley/relayscribe/logging"
	"github.com/bosley/relayscribe/transcript"
)

type submitOptions struct {
	serverURL string
	noStream  bool
	jsonOut   bool
}

func (o *submitOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.serverURL, "server", "", "Server URL, overriding client.server_url")
	cmd.Flags().BoolVar(&o.noStream, "no-stream", false, "Wait for a single JSON response instead of live progress")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the result as JSON")
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <file|url>",
		Short: "Transcribe a local audio file or a remote URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureLogger(); err != nil {
				return err
			}
			res, err := transcribe(cmd, ctx, opts, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, res, opts.jsonOut)
		},
	}
	opts.register(cmd)
	return cmd
}

// transcribe submits target and draws live progress on stderr when it is a
// terminal.
func transcribe(cmd *cobra.Command, ctx *commandContext, opts submitOptions, target string) (transcript.Result, error) {
	base, err := ctx.serverURL(opts.serverURL)
	if err != nil {
		return transcript.Result{}, err
	}

	line := newProgressLine(cmd.ErrOrStderr(), !opts.jsonOut && logging.IsTerminal(cmd.ErrOrStderr()))
	c, err := client.New(client.Options{
		BaseURL:  base,
		Stream:   !opts.noStream,
		OnUpdate: line.update,
	})
	if err != nil {
		return transcript.Result{}, err
	}

	res, err := submitTarget(cmd.Context(), c, target)
	line.finish()
	return res, err
}

func submitTarget(ctx context.Context, c *client.Client, target string) (transcript.Result, error) {
	if isRemoteURL(target) {
		return c.TranscribeURL(ctx, target)
	}
	return c.TranscribeFile(ctx, target)
}

func isRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
