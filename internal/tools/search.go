package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
)

const defaultDirectoryLimit = 20

func (t *Toolset) searchTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("search-public-rooms",
				mcp.WithTitleAnnotation("Search Public Matrix Rooms"),
				mcp.WithDescription("Search for public Matrix rooms that you can join, with optional filtering by name or topic"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("searchTerm", mcp.Description("Search term to filter rooms by name or topic")),
				mcp.WithString("server", mcp.Description("Specific server to search rooms on (defaults to your homeserver)")),
				mcp.WithNumber("limit",
					mcp.DefaultNumber(defaultDirectoryLimit),
					mcp.Description("Maximum number of rooms to return (default: 20)"),
				),
			),
			Handler: t.withSession("search-public-rooms", "search public rooms", t.handleSearchPublicRooms),
		},
	}
}

func (t *Toolset) handleSearchPublicRooms(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	searchTerm := req.GetString("searchTerm", "")
	limit := req.GetInt("limit", defaultDirectoryLimit)
	if limit <= 0 {
		return errorResult("Error: limit must be positive"), nil
	}

	page, err := call.session.PublicRooms(ctx, matrix.PublicRoomsQuery{
		Server:     req.GetString("server", ""),
		SearchTerm: searchTerm,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	matching := ""
	if searchTerm != "" {
		matching = fmt.Sprintf(" matching %q", searchTerm)
	}
	if len(page.Rooms) == 0 {
		return textResult(fmt.Sprintf("No public rooms found%s", matching)), nil
	}

	texts := []string{fmt.Sprintf("Found %d public rooms%s:", len(page.Rooms), matching)}
	for _, room := range page.Rooms {
		avatar := "No avatar"
		if room.AvatarURL != "" {
			avatar = "Has avatar"
		}
		texts = append(texts, fmt.Sprintf(`%s (%s)
Topic: %s
Members: %d
Avatar: %s
Room ID: %s`,
			orDefault(room.Name, "Unnamed Room"),
			orDefault(room.CanonicalAlias, room.RoomID),
			orDefault(room.Topic, "No topic"),
			room.Members,
			avatar,
			room.RoomID,
		))
	}
	return textResult(texts...), nil
}
