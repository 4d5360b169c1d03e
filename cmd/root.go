/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/crosspost/bluesky"
	"github.com/blacktop/crosspost/internal/crosspost/endpoint"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crosspost",
		Short: "Cross-post published articles to Bluesky",
		Long: "crosspost copies a published article's excerpt, tags, and featured image to Bluesky, " +
			"either when the CMS reports a publish or when an editor asks for it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetVerbose(verbose)
		},
		Example: `  crosspost serve --config /etc/crosspost.yml
  crosspost settings set --profile-id alice.bsky.social
  crosspost post 42 --dry-run`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default $CROSSPOST_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newPostCommand())
	cmd.AddCommand(newSettingsCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	logutil.Debugf("store opened: driver=%s", cfg.Database.Driver)
	return st, nil
}

func buildPoster(cfg config.BlueskyConfig) crosspost.Poster {
	switch cfg.Transport {
	case config.TransportEndpoint:
		return endpoint.New(endpoint.Config{URL: cfg.EndpointURL, Timeout: cfg.Timeout})
	default:
		return bluesky.New(bluesky.Config{PDSURL: cfg.PDSURL, Timeout: cfg.Timeout})
	}
}
