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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the Bluesky credentials and posting settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), settings, cfg.Server.PublicURL)
			return nil
		},
	}

	cmd.AddCommand(newSettingsSetCommand())

	return cmd
}

func newSettingsSetCommand() *cobra.Command {
	var (
		profileID        string
		disableScheduled bool
		askPassword      bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the Bluesky credentials and posting settings",
		Long: "Update the settings record. The app password is read from the terminal without echo, " +
			"or from stdin when it is not a terminal. Leave it blank to keep the stored password.",
		Args: cobra.NoArgs,
		Example: `  crosspost settings set --profile-id alice.bsky.social
  echo "$APP_PASSWORD" | crosspost settings set --profile-id alice.bsky.social`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			current, err := st.LoadConfig(ctx)
			if err != nil {
				return err
			}

			next := current
			if cmd.Flags().Changed("profile-id") {
				next.ProfileID = strings.TrimSpace(profileID)
			}
			if cmd.Flags().Changed("disable-scheduled-posting") {
				next.DisableScheduledPosting = disableScheduled
			}
			if askPassword {
				password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if password != "" {
					next.AppPassword = password
				}
			}

			if err := st.SaveConfig(ctx, next); err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), next, cfg.Server.PublicURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileID, "profile-id", "", "Bluesky handle or DID")
	cmd.Flags().BoolVar(&disableScheduled, "disable-scheduled-posting", false, "Rely on an external scheduler hitting /cron")
	cmd.Flags().BoolVar(&askPassword, "password", true, "Prompt for the app password")
	cmd.Flags().SortFlags = false

	return cmd
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(prompt, "App password (blank to keep): ")
		data, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printSettings(out io.Writer, settings crosspost.Config, publicURL string) {
	password := "(not set)"
	if settings.AppPassword != "" {
		password = "********"
	}
	profile := settings.ProfileID
	if profile == "" {
		profile = "(not set)"
	}

	fmt.Fprintf(out, "profile id:                %s\n", profile)
	fmt.Fprintf(out, "app password:              %s\n", password)
	fmt.Fprintf(out, "disable scheduled posting: %t\n", settings.DisableScheduledPosting)
	if settings.DisableScheduledPosting {
		base := strings.TrimRight(publicURL, "/")
		if base == "" {
			base = "http://<host>"
		}
		fmt.Fprintf(out, "cron url:                  %s/cron\n", base)
	}
}
