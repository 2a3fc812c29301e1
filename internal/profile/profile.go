package profile

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the gateway.
type Profile struct {
	// Telegram credentials. Both are wiped from the process environment
	// after FromEnv so child handlers only see the curated copies.
	APIToken  string
	APISecret string

	// HookHost and HookPath are matched against incoming webhook requests.
	HookHost string
	HookPath string

	BotID   int64
	OwnerID int64

	ListenHost string
	ListenPort int

	// Worker pool sizing.
	WorkerNum int
	JobsMin   int
	JobsMax   int

	// External command handlers.
	CmdPath       string
	CmdInheritEnv bool

	Mode    string
	Data    string
	Driver  string
	DSN     string
	DBFile  string
	Version string
}

const (
	DefaultListenHost = "127.0.0.1"
	DefaultListenPort = 22224
	DefaultWorkerNum  = 4
	DefaultJobsMin    = 32
	DefaultJobsMax    = 4096
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string) int64 {
	v, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return v
}

// FromEnv loads configuration from HOOKBOT_* environment variables.
// The bot token and webhook secret are removed from the environment once
// read; everything else stays visible.
func (p *Profile) FromEnv() {
	if v := os.Getenv("HOOKBOT_API_TOKEN"); v != "" {
		p.APIToken = v
	}
	if v := os.Getenv("HOOKBOT_API_SECRET"); v != "" {
		p.APISecret = v
	}
	os.Unsetenv("HOOKBOT_API_TOKEN")
	os.Unsetenv("HOOKBOT_API_SECRET")

	p.HookHost = stripScheme(os.Getenv("HOOKBOT_HOOK_URL"))
	p.HookPath = os.Getenv("HOOKBOT_HOOK_PATH")

	p.BotID = getEnvInt64("HOOKBOT_BOT_ID")
	p.OwnerID = getEnvInt64("HOOKBOT_OWNER_ID")

	p.ListenHost = getEnvOrDefault("HOOKBOT_LISTEN_HOST", DefaultListenHost)
	p.ListenPort = getEnvOrDefaultInt("HOOKBOT_LISTEN_PORT", DefaultListenPort)

	p.WorkerNum = getEnvOrDefaultInt("HOOKBOT_WORKER_THREADS_NUM", DefaultWorkerNum)
	p.JobsMin = getEnvOrDefaultInt("HOOKBOT_WORKER_JOBS_MIN", DefaultJobsMin)
	p.JobsMax = getEnvOrDefaultInt("HOOKBOT_WORKER_JOBS_MAX", DefaultJobsMax)

	if v := os.Getenv("HOOKBOT_DB_FILE"); v != "" {
		p.DBFile = v
	}
	if v := os.Getenv("HOOKBOT_CMD_PATH"); v != "" {
		p.CmdPath = v
	}
	p.CmdInheritEnv = getEnvOrDefault("HOOKBOT_CMD_INHERIT_ENV", "false") == "true"
}

// stripScheme normalizes a hook URL to its bare host for Host-header matching.
func stripScheme(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimPrefix(raw, "https://")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.APIToken == "" {
		return errors.New("bot API token required (HOOKBOT_API_TOKEN)")
	}
	if p.APISecret == "" {
		return errors.New("webhook secret required (HOOKBOT_API_SECRET)")
	}
	if p.HookHost == "" || p.HookPath == "" {
		return errors.New("hook host and path required (HOOKBOT_HOOK_URL, HOOKBOT_HOOK_PATH)")
	}
	if !strings.HasPrefix(p.HookPath, "/") {
		p.HookPath = "/" + p.HookPath
	}
	if p.BotID == 0 || p.OwnerID == 0 {
		return errors.New("non-zero bot id and owner id required (HOOKBOT_BOT_ID, HOOKBOT_OWNER_ID)")
	}
	if p.WorkerNum <= 0 {
		p.WorkerNum = DefaultWorkerNum
	}
	if p.JobsMin <= 0 {
		p.JobsMin = DefaultJobsMin
	}
	if p.JobsMax < p.JobsMin {
		p.JobsMax = DefaultJobsMax
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.CmdPath != "" && !filepath.IsAbs(p.CmdPath) {
		p.CmdPath = filepath.Join(p.Data, p.CmdPath)
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := p.DBFile
		if dbFile == "" {
			dbFile = fmt.Sprintf("hookbot_%s.db", p.Mode)
		}
		if !filepath.IsAbs(dbFile) {
			dbFile = filepath.Join(dataDir, dbFile)
		}
		p.DBFile = dbFile
		p.DSN = dbFile
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}

// ListenAddr returns the host:port the ingress server binds to.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.ListenHost, p.ListenPort)
}
