package killmail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "aabbccddeeff00112233445566778899aabbccdd"

func TestExtractReference_KillReportLink(t *testing.T) {
	body := `Hi, I lost my ship: <a href="killReport:128934567:` + testHash + `">Kill: Some Pilot (Hound)</a> please reimburse`

	ref, err := ExtractReference(body)
	require.NoError(t, err)
	assert.Equal(t, int64(128934567), ref.KillmailID)
	assert.Equal(t, testHash, ref.Hash)
}

func TestExtractReference_ZKillboardLink(t *testing.T) {
	body := "here it is https://zkillboard.com/kill/128934567/ thanks"

	ref, err := ExtractReference(body)
	require.NoError(t, err)
	assert.Equal(t, int64(128934567), ref.KillmailID)
	assert.Empty(t, ref.Hash, "web link carries no hash")
}

func TestExtractReference_PrefersEmbeddedHash(t *testing.T) {
	body := "https://zkillboard.com/kill/111/ and killReport:222:" + testHash

	ref, err := ExtractReference(body)
	require.NoError(t, err)
	assert.Equal(t, int64(222), ref.KillmailID)
	assert.Equal(t, testHash, ref.Hash)
}

func TestExtractReference_NoReference(t *testing.T) {
	_, err := ExtractReference("please give me ISK")
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestCountReferences(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"none", "no links here", 0},
		{"single report", "killReport:1:" + testHash, 1},
		{"single web", "zkillboard.com/kill/5/", 1},
		{"two distinct", "killReport:1:" + testHash + " and zkillboard.com/kill/2/", 2},
		{"same kill in both forms", "killReport:7:" + testHash + " https://zkillboard.com/kill/7/", 1},
		{"repeated link", strings.Repeat("zkillboard.com/kill/9/ ", 3), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountReferences(tt.body))
		})
	}
}
