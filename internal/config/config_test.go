package config

import (
	"testing"

	"github.com/ordalo/filepress/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLadder(t *testing.T) {
	rungs, err := parseLadder("1920:80,1920:65,1920:50,1200:40,800:35")
	require.NoError(t, err)
	require.Len(t, rungs, 5)
	assert.Equal(t, domain.LadderRung{MaxWidth: 1920, Quality: 80}, rungs[0])
	assert.Equal(t, domain.LadderRung{MaxWidth: 800, Quality: 35}, rungs[4])
}

func TestParseLadderRejectsIncreasingRungs(t *testing.T) {
	_, err := parseLadder("1200:40,1920:80")
	assert.Error(t, err)

	_, err = parseLadder("1920:50,1920:80")
	assert.Error(t, err)
}

func TestParseLadderRejectsMalformedRungs(t *testing.T) {
	for _, s := range []string{"1920", "1920:0", "1920:101", "abc:50", "1920:xy"} {
		_, err := parseLadder(s)
		assert.Error(t, err, "ladder %q should not parse", s)
	}
}

// clearConfigEnv blanks every variable Load reads so the test sees the
// built-in defaults regardless of the host environment. The getEnv helpers
// treat an empty value as unset, and t.Setenv restores the originals.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "MAX_UPLOAD_SIZE_MB", "API_KEYS", "IDEMPOTENCY_TTL_SECONDS",
		"DATA_DIR", "FOLDERS",
		"IMAGE_BUDGET_MB", "PDF_BUDGET_MB", "OTHER_BUDGET_MB",
		"IMAGE_LADDER", "IMAGE_POLICY",
		"GS_BIN", "GS_TIMEOUT_SECONDS", "GS_TARGET_DPI",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(5*1024*1024), cfg.Compression.Budgets.Image)
	assert.Equal(t, int64(20*1024*1024), cfg.Compression.Budgets.PDF)
	assert.Equal(t, domain.ImagePolicyBestEffort, cfg.Compression.ImagePolicy)
	assert.Equal(t, "gs", cfg.Ghostscript.Binary)
	assert.Equal(t, 150, cfg.Ghostscript.TargetDPI)
	assert.True(t, cfg.AllowedFolder("images"))
	assert.False(t, cfg.AllowedFolder("../images"))
}

func TestLoadRespectsEnv(t *testing.T) {
	t.Setenv("IMAGE_BUDGET_MB", "2")
	t.Setenv("IMAGE_POLICY", "strict")
	t.Setenv("FOLDERS", "avatars, invoices")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), cfg.Compression.Budgets.Image)
	assert.Equal(t, domain.ImagePolicyStrict, cfg.Compression.ImagePolicy)
	assert.Equal(t, []string{"avatars", "invoices"}, cfg.Storage.Folders)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("IMAGE_POLICY", "lenient")
	_, err := Load()
	assert.Error(t, err)
}
