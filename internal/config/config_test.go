package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func (s *ConfigTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ConfigTestSuite) write(name, content string) string {
	file := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(file, []byte(content), 0o600))
	return file
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load("")
	s.Require().NoError(err)
	s.Equal(Default(), cfg)
}

func (s *ConfigTestSuite) TestYAMLFile() {
	file := s.write("gedal.yaml", `
id_field: id
max_concurrency: 2
log_level: debug
sqlite:
  dsn: file:test.db
  table_prefix: g_
`)
	cfg, err := Load(file)
	s.Require().NoError(err)
	s.Equal("id", cfg.IDField)
	s.Equal(2, cfg.MaxConcurrency)
	s.Equal("memory", cfg.DefaultBackend)
	s.Equal("file:test.db", cfg.SQLite.DSN)
	s.Equal("g_", cfg.SQLite.TablePrefix)

	level, err := cfg.Level()
	s.Require().NoError(err)
	s.Equal(slog.LevelDebug, level)
}

func (s *ConfigTestSuite) TestJSONFile() {
	file := s.write("gedal.json", `{"default_backend": "sqlite", "default_field_type": "any"}`)
	cfg, err := Load(file)
	s.Require().NoError(err)
	s.Equal("sqlite", cfg.DefaultBackend)
	s.Equal("any", cfg.DefaultFieldType)
}

func (s *ConfigTestSuite) TestEnvironmentWins() {
	file := s.write("gedal.yaml", "max_concurrency: 2\n")
	s.T().Setenv("GEDAL_MAX_CONCURRENCY", "5")
	s.T().Setenv("GEDAL_SQLITE_DSN", ":memory:")

	cfg, err := Load(file)
	s.Require().NoError(err)
	s.Equal(5, cfg.MaxConcurrency)
	s.Equal(":memory:", cfg.SQLite.DSN)
}

func (s *ConfigTestSuite) TestInvalid() {
	file := s.write("gedal.yaml", "max_concurrency: 0\nid_field: \"\"\nlog_level: loud\n")
	_, err := Load(file)
	s.ErrorIs(err, errMaxConcurrency)
	s.ErrorIs(err, errIDField)

	_, err = Load(filepath.Join(s.dir, "missing.yaml"))
	s.Error(err)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
