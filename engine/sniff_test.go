package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTail(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLooksEncrypted(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "trailer with encrypt",
			content: "%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<< /Size 5 /Root 1 0 R /Encrypt 4 0 R >>\nstartxref\n123\n%%EOF\n",
			want:    true,
		},
		{
			name:    "trailer without encrypt",
			content: "%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n123\n%%EOF\n",
			want:    false,
		},
		{
			name:    "encrypt outside the last trailer is ignored",
			content: "%PDF-1.7\ntrailer\n<< /Encrypt 4 0 R >>\n%%EOF\n5 0 obj\n<<>>\nendobj\ntrailer\n<< /Size 6 /Prev 9 >>\n%%EOF\n",
			want:    false,
		},
		{
			name:    "xref stream without trailer keyword",
			content: "%PDF-1.7\n7 0 obj\n<< /Type /XRef /Encrypt 3 0 R /Size 8 >>\nstream\nendstream\nendobj\nstartxref\n99\n%%EOF\n",
			want:    true,
		},
		{
			name:    "plain file without trailer",
			content: "%PDF-1.7\n7 0 obj\n<< /Type /XRef /Size 8 >>\nstartxref\n99\n%%EOF\n",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LooksEncrypted(writeTail(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLooksEncrypted_OnlyReadsTail(t *testing.T) {
	head := "%PDF-1.7\ntrailer\n<< /Encrypt 4 0 R >>\n"
	padding := strings.Repeat("0", tailSize*2)
	got, err := LooksEncrypted(writeTail(t, head+padding+"\n%%EOF\n"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestLooksEncrypted_BinaryTail(t *testing.T) {
	content := "%PDF-1.7\n\xff\xfe\x00\x80 binary\ntrailer\n<< /Encrypt 2 0 R >>\n%%EOF"
	got, err := LooksEncrypted(writeTail(t, content))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestLooksEncrypted_Errors(t *testing.T) {
	_, err := LooksEncrypted(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = LooksEncrypted(writeTail(t, ""))
	assert.ErrorIs(t, err, ErrIOError)
}
