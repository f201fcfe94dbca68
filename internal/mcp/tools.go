package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/service"
	"github.com/forest6511/lockbox/pkg/vault"
)

// ItemListInput represents input for item_list tool.
type ItemListInput struct {
	FolderID string `json:"folder_id,omitempty"`
	Unfiled  bool   `json:"unfiled,omitempty"`
	Query    string `json:"query,omitempty"`
}

// ItemListOutput represents output for item_list tool.
type ItemListOutput struct {
	Items []ItemInfo `json:"items"`
}

// ItemInfo describes an item without its password.
type ItemInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	FolderID     string            `json:"folder_id,omitempty"`
	Username     string            `json:"username,omitempty"`
	URI          string            `json:"uri,omitempty"`
	Type         string            `json:"type"`
	Favorite     bool              `json:"favorite"`
	HasPassword  bool              `json:"has_password"`
	HasNotes     bool              `json:"has_notes"`
	RevisionDate string            `json:"revision_date,omitempty"`
	Age          security.AgeLevel `json:"age"`
	AgeDays      *int              `json:"age_days,omitempty"`
}

// ItemGetMaskedInput represents input for item_get_masked tool.
type ItemGetMaskedInput struct {
	ID string `json:"id"`
}

// ItemGetMaskedOutput represents output for item_get_masked tool.
type ItemGetMaskedOutput struct {
	Item           ItemInfo    `json:"item"`
	MaskedPassword string      `json:"masked_password"`
	PasswordLength int         `json:"password_length"`
	URIs           []string    `json:"uris"`
	Fields         []FieldInfo `json:"fields"`
}

// FieldInfo is a custom field; hidden values are masked.
type FieldInfo struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Type   string `json:"type"`
	Masked bool   `json:"masked"`
}

// FolderListInput represents input for folder_list tool.
type FolderListInput struct{}

// FolderListOutput represents output for folder_list tool.
type FolderListOutput struct {
	Folders []FolderInfo `json:"folders"`
}

// FolderInfo is a folder with its item count.
type FolderInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
}

// SecurityReportInput represents input for security_report tool.
type SecurityReportInput struct {
	IncludeIDs bool `json:"include_ids,omitempty"`
}

func toItemInfo(item *service.DecoratedItem) ItemInfo {
	info := ItemInfo{
		ID:           item.ID,
		Name:         item.Name,
		Username:     item.Username,
		URI:          item.URI,
		Type:         item.Type.String(),
		Favorite:     item.Favorite,
		HasPassword:  item.Password != "",
		HasNotes:     item.Notes != "",
		RevisionDate: item.RevisionDate,
		Age:          item.Age,
		AgeDays:      item.AgeDays,
	}
	if item.FolderID != nil {
		info.FolderID = *item.FolderID
	}
	return info
}

// handleItemList handles the item_list tool call.
func (s *Server) handleItemList(ctx context.Context, _ *mcp.CallToolRequest, input ItemListInput) (*mcp.CallToolResult, ItemListOutput, error) {
	items, err := s.svc.ListItems(ctx, service.ItemFilter{
		FolderID: input.FolderID,
		Unfiled:  input.Unfiled,
		Query:    input.Query,
	})
	if err != nil {
		return nil, ItemListOutput{}, toolError("failed to list items", err)
	}

	output := ItemListOutput{Items: make([]ItemInfo, 0, len(items))}
	for i := range items {
		output.Items = append(output.Items, toItemInfo(&items[i]))
	}
	return nil, output, nil
}

// handleItemGetMasked handles the item_get_masked tool call.
func (s *Server) handleItemGetMasked(ctx context.Context, _ *mcp.CallToolRequest, input ItemGetMaskedInput) (*mcp.CallToolResult, ItemGetMaskedOutput, error) {
	if input.ID == "" {
		return nil, ItemGetMaskedOutput{}, errors.New("id is required")
	}

	detail, err := s.svc.GetItem(ctx, input.ID)
	if err != nil {
		return nil, ItemGetMaskedOutput{}, toolError("failed to get item", err)
	}

	output := ItemGetMaskedOutput{
		Item:           toItemInfo(&detail.DecoratedItem),
		MaskedPassword: maskValue(detail.Password),
		PasswordLength: utf8.RuneCountInString(detail.Password),
		URIs:           make([]string, 0, len(detail.URIs)),
		Fields:         make([]FieldInfo, 0, len(detail.Fields)),
	}
	for _, u := range detail.URIs {
		output.URIs = append(output.URIs, u.URI)
	}
	for _, f := range detail.Fields {
		fi := FieldInfo{Name: f.Name, Value: f.Value, Type: f.Type.String()}
		if f.Type.Sensitive() {
			fi.Value = maskValue(f.Value)
			fi.Masked = true
		}
		output.Fields = append(output.Fields, fi)
	}
	return nil, output, nil
}

// handleFolderList handles the folder_list tool call.
func (s *Server) handleFolderList(ctx context.Context, _ *mcp.CallToolRequest, _ FolderListInput) (*mcp.CallToolResult, FolderListOutput, error) {
	folders, err := s.svc.ListFolders(ctx)
	if err != nil {
		return nil, FolderListOutput{}, toolError("failed to list folders", err)
	}

	output := FolderListOutput{Folders: make([]FolderInfo, 0, len(folders))}
	for _, f := range folders {
		output.Folders = append(output.Folders, FolderInfo{ID: f.ID, Name: f.Name, ItemCount: f.ItemCount})
	}
	return nil, output, nil
}

// handleSecurityReport handles the security_report tool call.
func (s *Server) handleSecurityReport(ctx context.Context, _ *mcp.CallToolRequest, input SecurityReportInput) (*mcp.CallToolResult, security.SecurityScore, error) {
	score, err := s.svc.SecurityReport(ctx, input.IncludeIDs)
	if err != nil {
		return nil, security.SecurityScore{}, toolError("failed to build security report", err)
	}
	return nil, *score, nil
}

// toolError reduces err to its class so storage details do not reach the
// agent.
func toolError(msg string, err error) error {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		var nf *vault.NotFoundError
		if errors.As(err, &nf) {
			return fmt.Errorf("%s: %s %q not found", msg, nf.Entity, nf.ID)
		}
		return fmt.Errorf("%s: not found", msg)
	case errors.Is(err, vault.ErrValidation):
		return fmt.Errorf("%s: %w", msg, err)
	default:
		return fmt.Errorf("%s: internal error", msg)
	}
}

// maskValue masks a value showing only the last few characters.
// Values of 4 characters or fewer are fully masked.
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)
	if length == 0 {
		return ""
	}

	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(runes[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(runes[length-4:])
	}
}
