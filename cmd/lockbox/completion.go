package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/service"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(lockbox completion bash)

  # To load for each session (Linux):
  $ lockbox completion bash > ~/.local/share/bash-completion/completions/lockbox

Zsh:
  $ lockbox completion zsh > ~/.zsh/completions/_lockbox
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ lockbox completion fish > ~/.config/fish/completions/lockbox.fish

PowerShell:
  PS> lockbox completion powershell >> $PROFILE

Item and folder ids are completed from an existing vault. Completion never
creates a vault.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Annotations:           map[string]string{annotationNoVault: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// withCompletionVault opens the vault for a completion request and runs fn.
// Nothing is completed, and nothing is created, when no vault exists yet.
func withCompletionVault(cmd *cobra.Command, fn func(*service.Service) ([]string, error)) ([]string, cobra.ShellCompDirective) {
	if err := loadConfig(); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if _, err := os.Stat(vaultPath()); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if err := openVault(cmd); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer func() { _ = closeVault() }()

	values, err := fn(svc)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return values, cobra.ShellCompDirectiveNoFileComp
}

// itemCompletions returns "id\tname" pairs for items whose id starts with
// prefix.
func itemCompletions(cmd *cobra.Command, prefix string) ([]string, cobra.ShellCompDirective) {
	return withCompletionVault(cmd, func(s *service.Service) ([]string, error) {
		items, err := s.ListItems(cmd.Context(), service.ItemFilter{})
		if err != nil {
			return nil, err
		}
		var out []string
		for _, item := range items {
			if strings.HasPrefix(item.ID, prefix) {
				out = append(out, item.ID+"\t"+item.Name)
			}
		}
		return out, nil
	})
}

// folderCompletions returns "id\tname" pairs for folders whose id starts
// with prefix.
func folderCompletions(cmd *cobra.Command, prefix string) ([]string, cobra.ShellCompDirective) {
	return withCompletionVault(cmd, func(s *service.Service) ([]string, error) {
		folders, err := s.ListFolders(cmd.Context())
		if err != nil {
			return nil, err
		}
		var out []string
		for _, f := range folders {
			if strings.HasPrefix(f.ID, prefix) {
				out = append(out, f.ID+"\t"+f.Name)
			}
		}
		return out, nil
	})
}

// completeItemID completes the first positional argument with item ids.
func completeItemID(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return itemCompletions(cmd, toComplete)
}

// completeFolderID completes the first positional argument with folder ids.
func completeFolderID(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return folderCompletions(cmd, toComplete)
}

// completeMoveArgs completes an item id, then a folder id.
func completeMoveArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return itemCompletions(cmd, toComplete)
	case 1:
		return folderCompletions(cmd, toComplete)
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func completeFolderFlag(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return folderCompletions(cmd, toComplete)
}

// registerCompletionFunctions registers ValidArgsFunction for commands that
// take item or folder ids. It must run after every init so the flags exist.
func registerCompletionFunctions() {
	for _, c := range []*cobra.Command{itemShowCmd, itemEditCmd, itemFavoriteCmd, itemDeleteCmd} {
		c.ValidArgsFunction = completeItemID
	}
	itemMoveCmd.ValidArgsFunction = completeMoveArgs

	for _, c := range []*cobra.Command{folderRenameCmd, folderDeleteCmd} {
		c.ValidArgsFunction = completeFolderID
	}

	_ = itemListCmd.RegisterFlagCompletionFunc("folder", completeFolderFlag)
	_ = itemAddCmd.RegisterFlagCompletionFunc("folder", completeFolderFlag)
}
