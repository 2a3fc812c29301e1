package profile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile(t *testing.T) *Profile {
	t.Helper()
	return &Profile{
		APIToken:  "123456:token",
		APISecret: "s3cret",
		HookHost:  "bot.example.org",
		HookPath:  "/hook",
		BotID:     100,
		OwnerID:   200,
		Mode:      "dev",
		Data:      t.TempDir(),
	}
}

func TestValidate(t *testing.T) {
	p := validProfile(t)
	require.NoError(t, p.Validate())
	assert.Equal(t, "sqlite", p.Driver)
	assert.NotEmpty(t, p.DSN)
	assert.Equal(t, DefaultWorkerNum, p.WorkerNum)
	assert.Equal(t, DefaultJobsMin, p.JobsMin)
	assert.Equal(t, DefaultJobsMax, p.JobsMax)
}

func TestValidateMissingCredentials(t *testing.T) {
	p := validProfile(t)
	p.APIToken = ""
	require.Error(t, p.Validate())

	p = validProfile(t)
	p.APISecret = ""
	require.Error(t, p.Validate())
}

func TestValidateRequiresIdentifiers(t *testing.T) {
	p := validProfile(t)
	p.BotID = 0
	require.Error(t, p.Validate())

	p = validProfile(t)
	p.OwnerID = 0
	require.Error(t, p.Validate())
}

func TestValidateNormalizesHookPath(t *testing.T) {
	p := validProfile(t)
	p.HookPath = "hook"
	require.NoError(t, p.Validate())
	assert.Equal(t, "/hook", p.HookPath)
}

func TestFromEnvWipesSecrets(t *testing.T) {
	t.Setenv("HOOKBOT_API_TOKEN", "tok")
	t.Setenv("HOOKBOT_API_SECRET", "sec")
	t.Setenv("HOOKBOT_HOOK_URL", "https://bot.example.org")
	t.Setenv("HOOKBOT_HOOK_PATH", "/hook")

	var p Profile
	p.FromEnv()
	assert.Equal(t, "tok", p.APIToken)
	assert.Equal(t, "sec", p.APISecret)
	assert.Equal(t, "bot.example.org", p.HookHost)

	// Secrets must not stay visible to spawned handlers.
	assert.Empty(t, os.Getenv("HOOKBOT_API_TOKEN"))
	assert.Empty(t, os.Getenv("HOOKBOT_API_SECRET"))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "bot.example.org", stripScheme("https://bot.example.org"))
	assert.Equal(t, "bot.example.org", stripScheme("bot.example.org"))
	assert.Equal(t, "bot.example.org:8443", stripScheme("https://bot.example.org:8443/path"))
	assert.Equal(t, "", stripScheme(""))
}
