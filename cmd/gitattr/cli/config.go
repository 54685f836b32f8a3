package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/jsonutil"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/settings"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or change gitattr settings",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigTelemetryCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			toplevel, err := paths.Toplevel(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			s, err := settings.Load(toplevel)
			if err != nil {
				return exitWithSilentError(err)
			}
			data, err := jsonutil.MarshalIndentWithNewline(s, "", "  ")
			if err != nil {
				return exitWithSilentError(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigTelemetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telemetry [on|off]",
		Short: "Enable or disable anonymous telemetry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toplevel, err := paths.Toplevel(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			base, _ := paths.SettingsPaths(toplevel)

			m := map[string]any{}
			if data, err := os.ReadFile(base); err == nil {
				_ = json.Unmarshal(data, &m)
			}
			enabled := args[0] == "on"
			m["telemetry"] = enabled

			if err := paths.EnsureDir(filepath.Dir(base)); err != nil {
				return exitWithSilentError(err)
			}
			data, err := jsonutil.MarshalIndentWithNewline(m, "", "  ")
			if err != nil {
				return exitWithSilentError(err)
			}
			if err := os.WriteFile(base, data, 0o644); err != nil {
				return exitWithSilentError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "telemetry: %v\n", enabled)
			return nil
		},
	}
}
