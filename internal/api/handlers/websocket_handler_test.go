package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	wsBizID     = "11111111-1111-1111-1111-111111111111"
	wsVisitorID = "22222222-2222-2222-2222-222222222222"
)

func TestValidWidgetMessage(t *testing.T) {
	tests := []struct {
		name       string
		businessID string
		visitorID  string
		content    string
		maxContent int
		want       bool
	}{
		{
			name:       "valid message",
			businessID: wsBizID,
			visitorID:  wsVisitorID,
			content:    "How do refunds work?",
			maxContent: 4000,
			want:       true,
		},
		{
			name:       "content at the limit",
			businessID: wsBizID,
			visitorID:  wsVisitorID,
			content:    strings.Repeat("a", 4000),
			maxContent: 4000,
			want:       true,
		},
		{
			name:       "content over the limit",
			businessID: wsBizID,
			visitorID:  wsVisitorID,
			content:    strings.Repeat("a", 4001),
			maxContent: 4000,
			want:       false,
		},
		{
			name:       "empty content",
			businessID: wsBizID,
			visitorID:  wsVisitorID,
			content:    "",
			maxContent: 4000,
			want:       false,
		},
		{
			name:       "bad business id",
			businessID: "not-a-uuid",
			visitorID:  wsVisitorID,
			content:    "hello",
			maxContent: 4000,
			want:       false,
		},
		{
			name:       "bad visitor id",
			businessID: wsBizID,
			visitorID:  "not-a-uuid",
			content:    "hello",
			maxContent: 4000,
			want:       false,
		},
		{
			name:       "zero limit disables the cap",
			businessID: wsBizID,
			visitorID:  wsVisitorID,
			content:    strings.Repeat("a", 100000),
			maxContent: 0,
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validWidgetMessage(tt.businessID, tt.visitorID, tt.content, tt.maxContent)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, splitIntoWords("hello world"))
	assert.Equal(t, []string{"one", "\n", "two"}, splitIntoWords("one\ntwo"))
	assert.Empty(t, splitIntoWords(""))
	assert.Equal(t, []string{"solo"}, splitIntoWords("  solo  "))
}
