package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/service"
	"github.com/forest6511/lockbox/pkg/vault"
)

const maskedValue = "********"

// Item command flags
var (
	itemFolder         string
	itemUnfiled        bool
	itemSearch         string
	itemJSON           bool
	itemReveal         bool
	itemName           string
	itemUsername       string
	itemNotes          string
	itemURIs           []string
	itemFavorite       bool
	itemPasswordStdin  bool
	itemPromptPassword bool
	itemClearURIs      bool
)

// itemCmd is the parent command for item operations.
var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Item operations",
}

// itemListCmd lists items.
var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	Long: `List items, favorites first, then by name.

Examples:
  lockbox item list
  lockbox item list --folder=<folder-id>
  lockbox item list --unfiled --search=mail`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if itemFolder != "" && itemUnfiled {
			return errors.New("--folder and --unfiled are mutually exclusive")
		}

		items, err := svc.ListItems(cmd.Context(), service.ItemFilter{
			FolderID: itemFolder,
			Unfiled:  itemUnfiled,
			Query:    itemSearch,
		})
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}

		out := cmd.OutOrStdout()
		if itemJSON {
			return printJSON(out, items)
		}

		if len(items) == 0 {
			fmt.Fprintln(out, "No items found")
			return nil
		}
		for _, item := range items {
			line := item.ID + "  " + item.Name
			if item.Favorite {
				line = "★ " + line
			}
			if item.Username != "" {
				line += " <" + item.Username + ">"
			}
			if item.URI != "" {
				line += " " + item.URI
			}
			if marker := ageMarker(item.Age); marker != "" {
				line += " " + marker
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintf(out, "\nTotal: %d items\n", len(items))
		return nil
	},
}

// revealedItem adds the password to JSON output of item show --reveal.
type revealedItem struct {
	*service.ItemDetail
	Password string `json:"password"`
}

// itemShowCmd shows a single item.
var itemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an item with its URIs and fields",
	Long: `Show an item. The password and hidden fields are masked unless
--reveal is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := svc.GetItem(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if itemJSON {
			if itemReveal {
				return printJSON(out, revealedItem{ItemDetail: detail, Password: detail.Password})
			}
			masked := *detail
			masked.Fields = maskFields(detail.Fields)
			return printJSON(out, &masked)
		}
		printItemDetail(out, detail, itemReveal)
		return nil
	},
}

func printItemDetail(out io.Writer, d *service.ItemDetail, reveal bool) {
	fmt.Fprintf(out, "ID:        %s\n", d.ID)
	fmt.Fprintf(out, "Name:      %s\n", d.Name)
	fmt.Fprintf(out, "Type:      %s\n", d.Type)
	if d.FolderID != nil {
		fmt.Fprintf(out, "Folder:    %s\n", *d.FolderID)
	}
	if d.Username != "" {
		fmt.Fprintf(out, "Username:  %s\n", d.Username)
	}
	if d.Password != "" {
		if reveal {
			fmt.Fprintf(out, "Password:  %s\n", d.Password)
		} else {
			fmt.Fprintln(out, "Password:  ******** (use --reveal to show)")
		}
	}
	if d.Favorite {
		fmt.Fprintln(out, "Favorite:  yes")
	}
	for i, u := range d.URIs {
		fmt.Fprintf(out, "URI %d:     %s\n", i+1, u.URI)
	}
	if d.Notes != "" {
		fmt.Fprintf(out, "Notes:     %s\n", d.Notes)
	}
	for _, f := range d.Fields {
		value := f.Value
		if f.Type.Sensitive() && !reveal {
			value = maskedValue
		}
		fmt.Fprintf(out, "Field:     %s = %s (%s)\n", f.Name, value, f.Type)
	}
	if d.RevisionDate != "" {
		line := fmt.Sprintf("Revised:   %s", d.RevisionDate)
		if d.AgeDays != nil {
			line += fmt.Sprintf(" (%d days ago)", *d.AgeDays)
		}
		if marker := ageMarker(d.Age); marker != "" {
			line += " " + marker
		}
		fmt.Fprintln(out, line)
	}
}

// maskFields returns a copy of fields with sensitive values replaced.
func maskFields(fields []vault.Field) []vault.Field {
	if fields == nil {
		return nil
	}
	out := make([]vault.Field, len(fields))
	for i, f := range fields {
		if f.Type.Sensitive() {
			f.Value = maskedValue
		}
		out[i] = f
	}
	return out
}

func ageMarker(age security.AgeLevel) string {
	switch age {
	case security.AgeCritical:
		return "[rotate: over a year old]"
	case security.AgeWarning:
		return "[rotate soon]"
	default:
		return ""
	}
}

// readItemPassword resolves --password-stdin and --prompt-password. The
// second result is false when neither flag is set.
func readItemPassword(cmd *cobra.Command) (string, bool, error) {
	switch {
	case itemPasswordStdin && itemPromptPassword:
		return "", false, errors.New("--password-stdin and --prompt-password are mutually exclusive")
	case itemPasswordStdin:
		pw, err := readPasswordStdin(cmd)
		return pw, err == nil, err
	case itemPromptPassword:
		pw, err := readPasswordPrompt(cmd, "Enter password: ")
		return pw, err == nil, err
	}
	return "", false, nil
}

// itemAddCmd creates an item.
var itemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an item",
	Long: `Add a login item. Passwords are never accepted as flag values.

Examples:
  lockbox item add "Email" --username=me@example.com --prompt-password
  echo "$PW" | lockbox item add "CI token" --password-stdin --uri=https://ci.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _, err := readItemPassword(cmd)
		if err != nil {
			return err
		}

		item, err := svc.CreateItem(cmd.Context(), service.ItemInput{
			FolderID: itemFolder,
			Name:     args[0],
			Username: itemUsername,
			Password: password,
			Notes:    itemNotes,
			URIs:     itemURIs,
			Favorite: itemFavorite,
		})
		if err != nil {
			return fmt.Errorf("failed to add item: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created item: %s (ID: %s)\n", item.Name, item.ID)
		return nil
	},
}

// itemEditCmd updates an item.
var itemEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an item",
	Long: `Edit an item. Only the given flags change; --uri replaces every URI
and --clear-uris removes them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch service.ItemPatch
		flags := cmd.Flags()
		if flags.Changed("name") {
			patch.Name = &itemName
		}
		if flags.Changed("username") {
			patch.Username = &itemUsername
		}
		if flags.Changed("notes") {
			patch.Notes = &itemNotes
		}
		switch {
		case itemClearURIs && len(itemURIs) > 0:
			return errors.New("--uri and --clear-uris are mutually exclusive")
		case itemClearURIs:
			patch.URIs = []string{}
		case len(itemURIs) > 0:
			patch.URIs = itemURIs
		}

		password, ok, err := readItemPassword(cmd)
		if err != nil {
			return err
		}
		if ok {
			patch.Password = &password
		}

		item, err := svc.UpdateItem(cmd.Context(), args[0], patch)
		if err != nil {
			return fmt.Errorf("failed to edit item: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated item: %s (ID: %s)\n", item.Name, item.ID)
		return nil
	},
}

// itemMoveCmd moves an item into a folder.
var itemMoveCmd = &cobra.Command{
	Use:   "move <id> [folder-id]",
	Short: "Move an item into a folder, or out of any folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID := ""
		if len(args) == 2 {
			folderID = args[1]
		}
		if err := svc.MoveItem(cmd.Context(), args[0], folderID); err != nil {
			return fmt.Errorf("failed to move item: %w", err)
		}

		out := cmd.OutOrStdout()
		if folderID == "" {
			fmt.Fprintf(out, "Item '%s' removed from its folder\n", args[0])
		} else {
			fmt.Fprintf(out, "Item '%s' moved to folder '%s'\n", args[0], folderID)
		}
		return nil
	},
}

// itemFavoriteCmd toggles the favorite flag.
var itemFavoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle the favorite flag of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		favorite, err := svc.ToggleFavorite(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to toggle favorite: %w", err)
		}
		state := "no longer a favorite"
		if favorite {
			state = "now a favorite"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Item '%s' is %s\n", args[0], state)
		return nil
	},
}

// itemDeleteCmd deletes an item.
var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item with its URIs and fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteItem(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Item '%s' deleted\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemListCmd, itemShowCmd, itemAddCmd, itemEditCmd,
		itemMoveCmd, itemFavoriteCmd, itemDeleteCmd)

	itemListCmd.Flags().StringVar(&itemFolder, "folder", "", "Only items in this folder id")
	itemListCmd.Flags().BoolVar(&itemUnfiled, "unfiled", false, "Only items without a folder")
	itemListCmd.Flags().StringVar(&itemSearch, "search", "", "Case-insensitive match on name or username")
	itemListCmd.Flags().BoolVar(&itemJSON, "json", false, "Output in JSON format")

	itemShowCmd.Flags().BoolVar(&itemReveal, "reveal", false, "Show the password and hidden fields")
	itemShowCmd.Flags().BoolVar(&itemJSON, "json", false, "Output in JSON format")

	itemAddCmd.Flags().StringVar(&itemFolder, "folder", "", "Folder id")
	itemAddCmd.Flags().StringVar(&itemUsername, "username", "", "Username")
	itemAddCmd.Flags().StringVar(&itemNotes, "notes", "", "Notes")
	itemAddCmd.Flags().StringArrayVar(&itemURIs, "uri", nil, "URI (can be repeated)")
	itemAddCmd.Flags().BoolVar(&itemFavorite, "favorite", false, "Mark as favorite")
	itemAddCmd.Flags().BoolVar(&itemPasswordStdin, "password-stdin", false, "Read the password from standard input")
	itemAddCmd.Flags().BoolVar(&itemPromptPassword, "prompt-password", false, "Prompt for the password")

	itemEditCmd.Flags().StringVar(&itemName, "name", "", "New name")
	itemEditCmd.Flags().StringVar(&itemUsername, "username", "", "New username")
	itemEditCmd.Flags().StringVar(&itemNotes, "notes", "", "New notes")
	itemEditCmd.Flags().StringArrayVar(&itemURIs, "uri", nil, "Replace URIs (can be repeated)")
	itemEditCmd.Flags().BoolVar(&itemClearURIs, "clear-uris", false, "Remove every URI")
	itemEditCmd.Flags().BoolVar(&itemPasswordStdin, "password-stdin", false, "Read the new password from standard input")
	itemEditCmd.Flags().BoolVar(&itemPromptPassword, "prompt-password", false, "Prompt for the new password")
}
