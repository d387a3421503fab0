package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
	assert.NotEmpty(t, info.GitCommit)
}

func TestGetVersionString(t *testing.T) {
	s := GetVersionString()
	assert.True(t, strings.HasPrefix(s, "mailsync "+Version), s)
}

func TestGetDetailedVersionString(t *testing.T) {
	detailed := GetDetailedVersionString()
	for _, field := range []string{"mailsync", "Git commit:", "Build date:", "Go version:", "Platform:"} {
		assert.Contains(t, detailed, field)
	}
}

func TestIsRelease(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version, GitCommit = "1.2.0", "abcdef0123456789"
	assert.True(t, IsRelease())

	Version = "1.3.0-dev"
	assert.False(t, IsRelease())

	Version, GitCommit = "1.2.0", "unknown"
	assert.False(t, IsRelease())
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "abcdef01", shortCommit("abcdef0123456789"))
	assert.Equal(t, "abc", shortCommit("abc"))
}
