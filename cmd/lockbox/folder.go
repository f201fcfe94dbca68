package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/service"
)

// Folder command flags
var (
	folderID   string
	folderJSON bool
)

// folderCmd is the parent command for folder operations.
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Folder operations",
	Long: `Manage folders for organizing items.

Deleting a folder never deletes its items; they are moved out of the
folder instead.`,
}

// folderCreateCmd creates a new folder.
var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new folder",
	Long: `Create a new folder. The id is generated unless --id is given.

Examples:
  lockbox folder create "Work"
  lockbox folder create "Work" --id=work`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := svc.CreateFolder(cmd.Context(), service.FolderInput{ID: folderID, Name: args[0]})
		if err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}

		if folderJSON {
			return printJSON(cmd.OutOrStdout(), folder)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder: %s (ID: %s)\n", folder.Name, folder.ID)
		return nil
	},
}

// folderListCmd lists all folders.
var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		folders, err := svc.ListFolders(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}

		out := cmd.OutOrStdout()
		if folderJSON {
			if folders == nil {
				folders = []*service.FolderSummary{}
			}
			return printJSON(out, folders)
		}

		if len(folders) == 0 {
			fmt.Fprintln(out, "No folders found")
			return nil
		}
		for _, f := range folders {
			fmt.Fprintf(out, "%s  %s (%d items)\n", f.ID, f.Name, f.ItemCount)
		}
		return nil
	},
}

// folderRenameCmd renames a folder.
var folderRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.RenameFolder(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("failed to rename folder: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed folder '%s' to '%s'\n", args[0], args[1])
		return nil
	},
}

// folderDeleteCmd deletes a folder.
var folderDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder and move its items out of it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detached, err := svc.DeleteFolder(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder '%s' (%d items moved out)\n", args[0], detached)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderCreateCmd, folderListCmd, folderRenameCmd, folderDeleteCmd)

	folderCreateCmd.Flags().StringVar(&folderID, "id", "", "Folder id (default: generated)")
	folderCreateCmd.Flags().BoolVar(&folderJSON, "json", false, "Output in JSON format")
	folderListCmd.Flags().BoolVar(&folderJSON, "json", false, "Output in JSON format")
}
