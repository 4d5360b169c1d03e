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
	"fmt"
	"io"
	"strconv"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/spf13/cobra"
)

func newPostCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "post <post-id>",
		Short: "Cross-post a stored post now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid post id %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				post, err := st.GetPost(ctx, id)
				if err != nil {
					return err
				}
				settings, err := st.LoadConfig(ctx)
				if err != nil {
					return err
				}
				return printDryRun(out, post, settings)
			}

			poster := buildPoster(cfg.Bluesky)
			fmt.Fprintf(out, "posting to %s...\n", poster.Name())
			res, err := crosspost.NewDispatcher(st, poster).ManualPost(ctx, id)
			if err != nil {
				return err
			}
			if res.Skipped == crosspost.SkipAlreadyPosted {
				fmt.Fprintf(out, "already posted: %s\n", res.URL)
				return nil
			}
			fmt.Fprintf(out, "posted to %s: %s\n", poster.Name(), res.URL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be posted without posting")

	return cmd
}

func printDryRun(out io.Writer, post crosspost.Post, settings crosspost.Config) error {
	if post.Posted() {
		fmt.Fprintf(out, "[dry-run] post %d already cross-posted: %s\n", post.ID, post.CrosspostURL)
		return nil
	}
	req := crosspost.BuildRequest(post, settings)
	fmt.Fprintf(out, "[dry-run] would post as %q: %q\n", req.Credentials.ProfileID, req.Content)
	if req.ImageURL != "" {
		fmt.Fprintf(out, "[dry-run] image: %s\n", req.ImageURL)
	}
	if !settings.HasCredentials() {
		fmt.Fprintln(out, "[dry-run] warning: credentials are not configured")
	}
	return nil
}
