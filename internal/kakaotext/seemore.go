// Package kakaotext shapes outgoing text for the KakaoTalk client.
package kakaotext

import "strings"

const (
	// SeeMorePadding is enough zero-width characters to push the body behind the client's "see more" fold.
	SeeMorePadding = 500
	ZeroWidthSpace = "\u200b"
)

// FoldFirstLine keeps the first line of text visible and folds the rest behind "see more".
// Single-line text is returned unchanged.
func FoldFirstLine(text string) string {
	text = strings.TrimSpace(text)
	head, body, ok := strings.Cut(text, "\n")
	if !ok || strings.TrimSpace(body) == "" {
		return text
	}
	return Fold(head, body)
}

// Fold renders head, the padding, then body on a new line.
func Fold(head, body string) string {
	if strings.TrimSpace(body) == "" {
		return head
	}
	head = strings.TrimSpace(head)

	var b strings.Builder
	b.Grow(len(head) + SeeMorePadding*len(ZeroWidthSpace) + len(body) + 1)
	b.WriteString(head)
	b.WriteString(strings.Repeat(ZeroWidthSpace, SeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// Unfold strips the padding, e.g. before logging.
func Unfold(text string) string {
	return strings.ReplaceAll(text, ZeroWidthSpace, "")
}
