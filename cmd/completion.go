package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// completionCmd wraps Cobra's built-in shell completion generator.
// Running `kpiboard completion bash` prints a script the user can source.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for kpiboard. Page names, filter
presets and chart types complete as well as commands.

To load completions in the current shell session:

  # bash
  source <(kpiboard completion bash)

  # zsh
  source <(kpiboard completion zsh)

  # fish
  kpiboard completion fish | source`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		default:
			return cmd.Help()
		}
	},
}

// completePage completes the first positional argument with page names.
// Endpoint overrides from config are not consulted.
func completePage(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, p := range controller.Pages {
		if strings.HasPrefix(p.Name, toComplete) {
			out = append(out, p.Name+"\t"+p.Title)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completePresets(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(filter.Presets))
	for _, p := range filter.Presets {
		out = append(out, string(p))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeChartTypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(model.ChartTypes))
	for _, t := range model.ChartTypes {
		out = append(out, string(t))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// registerCompletions attaches argument and flag completion once every
// command has registered its flags.
func registerCompletions() {
	for _, c := range []*cobra.Command{
		pageShowCmd, pageWatchCmd, filterShowCmd, filterResetCmd,
		insightCmd, chartCmd, optionsCmd, viewCmd,
	} {
		c.ValidArgsFunction = completePage
		if c.Flags().Lookup("filter") != nil {
			_ = c.RegisterFlagCompletionFunc("filter", completePresets)
		}
	}
	filterSetCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 1 {
			return completePresets(cmd, args, toComplete)
		}
		return completePage(cmd, args, toComplete)
	}
	for _, c := range []*cobra.Command{chartCmd, optionsCmd} {
		_ = c.RegisterFlagCompletionFunc("type", completeChartTypes)
	}
}
