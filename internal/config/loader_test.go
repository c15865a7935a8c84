package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/civicwatch/internal/config"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MaxConcurrency, convey.ShouldEqual, 4)
				convey.So(cfg.Sources, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CIVIC_ADDR", ":8080")
			_ = os.Setenv("CIVIC_MAX_CONCURRENCY", "16")
			_ = os.Setenv("CIVIC_FETCH_TIMEOUT", "5s")
			_ = os.Setenv("CIVIC_RUN_INTERVAL", "1h")
			_ = os.Setenv("CIVIC_ALERT_DEDUPE_WINDOW", "30m")
			_ = os.Setenv("CIVIC_REDIS_DB", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxConcurrency, convey.ShouldEqual, 16)
				convey.So(cfg.FetchTimeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.RunInterval, convey.ShouldEqual, time.Hour)
				convey.So(cfg.AlertDedupeWindow, convey.ShouldEqual, 30*time.Minute)
				convey.So(cfg.RedisDB, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# civicwatch test config
addr: ":9090"
max_concurrency: 8
fetch_timeout: 10s
rules:
  - name: rezoning-watch
    severity: notable
    required_tags: [rezoning]
    message_template: "Rezoning activity: {title}"
sources:
  - id: springfield-meetings
    type: meeting
    url: https://example.gov/meetings.json
    timeout: 20s
    keywords:
      rezoning: [rezone, rezoning]
    category_tags:
      Planning Commission: planning
    default_tags: [springfield]
  - id: springfield-permits
    type: permit
    path: testdata/permits.json
    disabled: true
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CIVIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load scalars, rules and sources", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxConcurrency, convey.ShouldEqual, 8)
				convey.So(cfg.FetchTimeout, convey.ShouldEqual, 10*time.Second)
				convey.So(cfg.RunInterval, convey.ShouldEqual, 15*time.Minute)

				convey.So(cfg.Rules, convey.ShouldHaveLength, 1)
				convey.So(cfg.Rules[0].Severity, convey.ShouldEqual, model.SeverityNotable)
				convey.So(cfg.Rules[0].RequiredTags, convey.ShouldResemble, []string{"rezoning"})

				convey.So(cfg.Sources, convey.ShouldHaveLength, 2)
				m := cfg.Sources[0]
				convey.So(m.Type, convey.ShouldEqual, model.SourceMeeting)
				convey.So(m.Timeout, convey.ShouldEqual, 20*time.Second)
				convey.So(m.Keywords["rezoning"], convey.ShouldResemble, []string{"rezone", "rezoning"})
				convey.So(m.CategoryTags["Planning Commission"], convey.ShouldEqual, "planning")
				convey.So(m.DefaultTags, convey.ShouldResemble, []string{"springfield"})
				convey.So(cfg.Sources[1].Disabled, convey.ShouldBeTrue)
			})

			convey.Convey("And an env var overrides the file", func() {
				_ = os.Setenv("CIVIC_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.MaxConcurrency, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile("addr: [unclosed\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CIVIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CIVIC_CONFIG", "/nonexistent/civic.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CIVIC_MAX_CONCURRENCY", "lots")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			_ = os.Setenv("CIVIC_STORE_BACKEND", "postgres")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file declares a source with an unknown type", func() {
			tmpFile := createTempConfigFile("sources:\n  - id: x\n    type: tweets\n    url: https://x\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CIVIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"CIVIC_CONFIG",
		"CIVIC_ADDR",
		"CIVIC_MAX_CONCURRENCY",
		"CIVIC_FETCH_TIMEOUT",
		"CIVIC_RUN_INTERVAL",
		"CIVIC_ALERT_DEDUPE_WINDOW",
		"CIVIC_REDIS_DB",
		"CIVIC_STORE_BACKEND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "civic-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
