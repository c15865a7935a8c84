package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/civicwatch/internal/config"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.MaxConcurrency, convey.ShouldEqual, 4)
			convey.So(cfg.FetchTimeout, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.RunInterval, convey.ShouldEqual, 15*time.Minute)
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.AlertDedupeWindow, convey.ShouldBeZeroValue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New(context.Background())
		cfg.Sources = []model.SourceConfig{
			{ID: "meetings", Type: model.SourceMeeting, URL: "https://example.gov/m.json"},
		}
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		cases := map[string]func(c *config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = " " },
			"zero concurrency":      func(c *config.Config) { c.MaxConcurrency = 0 },
			"zero fetch timeout":    func(c *config.Config) { c.FetchTimeout = 0 },
			"negative interval":     func(c *config.Config) { c.RunInterval = -time.Second },
			"unknown backend":       func(c *config.Config) { c.StoreBackend = "sqlite" },
			"postgres without dsn":  func(c *config.Config) { c.StoreBackend = config.BackendPostgres },
			"unknown source type":   func(c *config.Config) { c.Sources[0].Type = "tweets" },
			"source without target": func(c *config.Config) { c.Sources[0].URL = "" },
			"duplicate source id": func(c *config.Config) {
				c.Sources = append(c.Sources, c.Sources[0])
			},
		}
		for name, mutate := range cases {
			convey.Convey("When it has "+name, func() {
				mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When postgres has a dsn", func() {
			cfg.StoreBackend = config.BackendPostgres
			cfg.PostgresDSN = "postgres://localhost/civic"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_LoadRules(t *testing.T) {
	convey.Convey("Given inline rules and a rule file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "rules.yaml")
		err := os.WriteFile(path, []byte("rules:\n  - name: from-file\n    severity: info\n    any_tags: [budget]\n"), 0o600)
		convey.So(err, convey.ShouldBeNil)

		cfg := config.New(context.Background())
		cfg.Rules = []rules.Rule{{Name: "inline", Severity: model.SeverityInfo, AnyTags: []string{"housing"}}}
		cfg.RulesPath = path

		rs, err := cfg.LoadRules()

		convey.Convey("Then file rules are appended to the inline ones", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(rs, convey.ShouldHaveLength, 2)
			convey.So(rs[0].Name, convey.ShouldEqual, "inline")
			convey.So(rs[1].Name, convey.ShouldEqual, "from-file")
		})

		convey.Convey("Then a missing file is a load error", func() {
			cfg.RulesPath = filepath.Join(dir, "missing.yaml")
			_, err := cfg.LoadRules()
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}
