// Package inspect dumps the static topology and the effective settings
// without starting the service.
package inspect

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/conf"
)

// Command creates the inspect command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect the default topology and settings",
	}
	inspectCmd.AddCommand(
		portsCommand(settings),
		routesCommand(settings),
		configCommand(settings),
	)
	return inspectCmd
}

func newGraph(settings *conf.Settings) *audiograph.Graph {
	return audiograph.New(audiograph.Config{
		MinBufferFrames: settings.Audio.MinBufferFrames,
		LatencyMs:       settings.Audio.LatencyMs,
	}, audiograph.Primary())
}

func portsCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the ports of the default topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := newGraph(settings)
			for _, p := range g.Ports() {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-10s %-7s %s\n",
					p.ID, p.Kind.String(), p.Flags.Direction.String(), p.Name)
			}
			return nil
		},
	}
}

func routesCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the routes of the default topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := newGraph(settings)
			for _, r := range g.Routes() {
				marker := ""
				if r.IsExclusive {
					marker = " (exclusive)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%v -> %d%s\n",
					r.SourcePortIDs, r.SinkPortID, marker)
			}
			return nil
		},
	}
}

func configCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Dump the effective settings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
