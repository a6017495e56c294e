package realtime

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRoom = errors.New("unknown room")

// Room kinds, used as the prefix of a room id ("project:42").
const (
	RoomInbox        = "inbox"
	RoomProject      = "project"
	RoomIssue        = "issue"
	RoomIssueViewers = "issue-viewers"
	RoomChannel      = "channel"
	RoomChat         = "chat"
)

func InboxRoom(userID string) string         { return RoomInbox + ":" + userID }
func ProjectRoom(projectID string) string    { return RoomProject + ":" + projectID }
func IssueRoom(issueID string) string        { return RoomIssue + ":" + issueID }
func IssueViewersRoom(issueID string) string { return RoomIssueViewers + ":" + issueID }
func ChannelRoom(channelID string) string    { return RoomChannel + ":" + channelID }
func ChatRoom(projectID string) string       { return RoomChat + ":" + projectID }

// ParseRoom splits a room id into its kind and target id.
func ParseRoom(roomID string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(roomID, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownRoom, roomID)
	}
	switch kind {
	case RoomInbox, RoomProject, RoomIssue, RoomIssueViewers, RoomChannel, RoomChat:
		return kind, id, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownRoom, roomID)
}
