// handlers/invite.go - Invite link generation and parsing
package handlers

import (
	"net/url"
	"strings"
)

const inviteLinkPrefix = "/join/"

// GenerateInviteLink builds a shareable join link of the form
// <origin>/join/<url-encoded session id>.
func GenerateInviteLink(origin, sessionID string) string {
	return strings.TrimRight(origin, "/") + inviteLinkPrefix + url.PathEscape(sessionID)
}

// ExtractInviteID returns the session id embedded in an invite link, or ""
// when the link is malformed. It never panics on garbage input.
func ExtractInviteID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	// The join segment must start the path, not appear mid-path. EscapedPath
	// keeps percent-encoded ids intact until the final unescape.
	path := u.EscapedPath()
	if !strings.HasPrefix(path, inviteLinkPrefix) {
		return ""
	}

	raw := strings.TrimPrefix(path, inviteLinkPrefix)
	if raw == "" || strings.Contains(raw, "/") {
		return ""
	}

	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		return ""
	}
	return id
}

// IsValidInviteLink reports whether the link's path begins with /join/ and an
// id is extractable.
func IsValidInviteLink(link string) bool {
	return ExtractInviteID(link) != ""
}
