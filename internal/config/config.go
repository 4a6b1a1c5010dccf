// Package config loads annotator settings from the environment (and a .env
// file when present). Command-line flags are layered on top in cmd/annotator.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"annotator/internal/common/fault"
	"annotator/internal/llm"
	"annotator/internal/snapshot"
	"annotator/internal/source/github"
	"annotator/internal/source/notion"
)

// Modes.
const (
	ModeProject = "project" // GitHub ProjectV2 board
	ModeDir     = "dir"     // directory of Markdown items
	ModeFile    = "file"    // single local document
	ModeNotion  = "notion"  // single Notion page
)

type Config struct {
	Mode       string
	Interval   time.Duration
	Settle     time.Duration // zero picks a per-mode default, see SettleWindow
	Manual     bool
	PromptDir  string
	StatusAddr string // empty disables the status server

	LLM      llm.Options
	Snapshot snapshot.Config
	GitHub   github.Config
	Notion   notion.Config
	Files    FilesConfig
}

type FilesConfig struct {
	Path            string
	Dir             string
	DescriptionFile string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(firstNonEmpty(env("LLM_PROVIDER"), "gemini"))
	cfg := &Config{
		Mode:       strings.ToLower(firstNonEmpty(env("ANNOTATOR_MODE"), ModeFile)),
		Interval:   durationEnv("ANNOTATOR_INTERVAL", time.Second),
		Settle:     durationEnv("ANNOTATOR_SETTLE", 0),
		Manual:     boolEnv("ANNOTATOR_MANUAL", false),
		PromptDir:  firstNonEmpty(env("ANNOTATOR_PROMPT_DIR"), "prompts"),
		StatusAddr: env("ANNOTATOR_STATUS_ADDR"),
		LLM: llm.Options{
			Provider: provider,
			Model:    env("LLM_MODEL"),
			APIKey:   firstNonEmpty(env("LLM_API_KEY"), providerKey(provider)),
			BaseURL:  env("GROQ_BASE_URL"),
			RPS:      floatEnv("LLM_RPS", 0),
			Burst:    intEnv("LLM_BURST", 0),
		},
		Snapshot: snapshot.Config{
			Backend:     firstNonEmpty(env("SNAPSHOT_BACKEND"), "file"),
			Dir:         firstNonEmpty(env("SNAPSHOT_DIR"), ".annotator"),
			PostgresDSN: env("SNAPSHOT_PG_DSN"),
			RedisURL:    env("SNAPSHOT_REDIS_URL"),
			CacheSize:   intEnv("SNAPSHOT_CACHE_SIZE", 0),
			S3: snapshot.S3Config{
				Endpoint:  env("SNAPSHOT_S3_ENDPOINT"),
				Region:    firstNonEmpty(env("SNAPSHOT_S3_REGION"), "us-east-1"),
				AccessKey: firstNonEmpty(env("SNAPSHOT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
				SecretKey: firstNonEmpty(env("SNAPSHOT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
				Bucket:    firstNonEmpty(env("SNAPSHOT_S3_BUCKET"), "annotator-snapshots"),
				UseSSL:    boolEnv("SNAPSHOT_S3_USE_SSL", true),
			},
		},
		GitHub: github.Config{
			Token:     firstNonEmpty(env("GITHUB_TOKEN"), env("GH_TOKEN")),
			ProjectID: env("GITHUB_PROJECT_ID"),
			Endpoint:  env("GITHUB_GRAPHQL_URL"),
		},
		Notion: notion.Config{
			Token:         env("NOTION_API_KEY"),
			DatabaseID:    firstNonEmpty(env("NOTION_DATABASE_ID"), env("DATABASE_ID")),
			PageName:      firstNonEmpty(env("NOTION_PAGE_NAME"), env("PAGE_NAME")),
			TitleProperty: env("NOTION_TITLE_PROPERTY"),
		},
		Files: FilesConfig{
			Path:            env("DOC_PATH"),
			Dir:             env("DOC_DIR"),
			DescriptionFile: env("DOC_DESCRIPTION_FILE"),
		},
	}
	return cfg, nil
}

// SettleWindow is the debounce window for the single-document loop. Notion
// edits arrive block by block, so that mode waits longer by default.
func (c *Config) SettleWindow() time.Duration {
	if c.Settle > 0 {
		return c.Settle
	}
	if c.Mode == ModeNotion {
		return 3 * time.Second
	}
	return time.Second
}

// Validate checks that the selected mode has what it needs.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fault.Config("validate", errors.New("interval must be positive"))
	}
	var missing []string
	switch c.Mode {
	case ModeProject:
		if c.GitHub.Token == "" {
			missing = append(missing, "GITHUB_TOKEN")
		}
		if c.GitHub.ProjectID == "" {
			missing = append(missing, "GITHUB_PROJECT_ID")
		}
	case ModeDir:
		if c.Files.Dir == "" {
			missing = append(missing, "DOC_DIR")
		}
	case ModeFile:
		if c.Files.Path == "" {
			missing = append(missing, "DOC_PATH")
		}
	case ModeNotion:
		if c.Notion.Token == "" {
			missing = append(missing, "NOTION_API_KEY")
		}
		if c.Notion.DatabaseID == "" {
			missing = append(missing, "NOTION_DATABASE_ID")
		}
		if c.Notion.PageName == "" {
			missing = append(missing, "NOTION_PAGE_NAME")
		}
	default:
		return fault.Config("validate", errors.New("unknown mode "+strconv.Quote(c.Mode)))
	}
	if len(missing) > 0 {
		return fault.Config("validate", errors.New("missing "+strings.Join(missing, ", ")))
	}
	return nil
}

// MultiItem reports whether the mode tracks many items rather than one document.
func (c *Config) MultiItem() bool {
	return c.Mode == ModeProject || c.Mode == ModeDir
}

func providerKey(provider string) string {
	switch provider {
	case "groq":
		return env("GROQ_API_KEY")
	default:
		return firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"))
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func durationEnv(key string, def time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(env(key))
	if err != nil {
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(env(key))
	if err != nil {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(env(key), 64)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
