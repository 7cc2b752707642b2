package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/pkg/paths"
	"github.com/grovetools/chordsync/util/pathutil"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in order in every directory.
var configNames = []string{
	"chordsync.yml",
	"chordsync.yaml",
	"chordsync.toml",
	".chordsync.yml",
	".chordsync.yaml",
}

// overrideNames are merged over the project config when present next to it.
var overrideNames = []string{
	"chordsync.override.yml",
	"chordsync.override.yaml",
	"chordsync.override.toml",
}

// Load reads, validates and decodes a single configuration file.
func Load(path string) (*Config, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	return finalize(raw)
}

// LoadFromBytes parses configuration in the given format ("yaml" or "toml").
func LoadFromBytes(data []byte, format string) (*Config, error) {
	raw, err := parseRaw(data, format)
	if err != nil {
		return nil, err
	}
	return finalize(raw)
}

// LoadDefault finds and loads the configuration starting from the working
// directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging:
// 1. Global config ($XDG_CONFIG_HOME/chordsync/chordsync.yml) - base layer
// 2. Project config (chordsync.yml found from startDir upwards) - overrides global
// 3. Local override (chordsync.override.yml next to it) - overrides all
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger is LoadFrom with debug output sent to logger.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	projectPath, err := FindConfigFile(startDir)
	if err != nil {
		return nil, err
	}
	return loadLayers(projectPath, logger)
}

// LoadFile loads path as the project layer, with the global layer below it
// and overrides next to it applied.
func LoadFile(path string) (*Config, error) {
	return loadLayers(path, logrus.New())
}

func loadLayers(projectPath string, logger *logrus.Logger) (*Config, error) {
	merged := map[string]interface{}{}

	if globalPath := globalConfigPath(); globalPath != "" && !pathutil.SamePath(globalPath, projectPath) {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			raw, err := readRaw(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
			} else {
				merged = mergeMaps(merged, raw)
			}
		}
	}

	logger.WithField("path", projectPath).Debug("Loading project configuration")
	raw, err := readRaw(projectPath)
	if err != nil {
		return nil, err
	}
	merged = mergeMaps(merged, raw)

	projectDir := filepath.Dir(projectPath)
	for _, name := range overrideNames {
		overridePath := filepath.Join(projectDir, name)
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading local override configuration")
		raw, err := readRaw(overridePath)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse override file, skipping")
			continue
		}
		merged = mergeMaps(merged, raw)
	}

	cfg, err := finalize(merged)
	if err != nil {
		return nil, withViolations(errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to load configuration").
			WithDetail("path", projectPath), err)
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// FindConfigFile searches for chordsync configuration files with the following precedence:
// 1. Start directory up to filesystem root
// 2. XDG config directory ($XDG_CONFIG_HOME/chordsync/chordsync.yml)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if globalPath := globalConfigPath(); globalPath != "" {
		if info, err := os.Stat(globalPath); err == nil && !info.IsDir() {
			return globalPath, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// LayerFiles lists the existing files LoadFile merges for projectPath, in
// merge order: global, project, then overrides.
func LayerFiles(projectPath string) []string {
	var files []string
	if globalPath := globalConfigPath(); globalPath != "" && !pathutil.SamePath(globalPath, projectPath) {
		if _, err := os.Stat(globalPath); err == nil {
			files = append(files, globalPath)
		}
	}
	files = append(files, projectPath)
	for _, name := range overrideNames {
		overridePath := filepath.Join(filepath.Dir(projectPath), name)
		if _, err := os.Stat(overridePath); err == nil {
			files = append(files, overridePath)
		}
	}
	return files
}

func readRaw(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	raw, err := parseRaw(data, formatOf(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	return raw, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

func parseRaw(data []byte, format string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	raw := map[string]interface{}{}
	switch format {
	case "toml":
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	case "yaml", "":
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported config format '%s'", format))
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

// finalize validates raw against the schema, decodes it, applies defaults
// and runs semantic validation.
func finalize(raw map[string]interface{}) (*Config, error) {
	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	cfg, err := decode(raw)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &cfg,
		TagName:    "yaml",
		Metadata:   &md,
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	for _, key := range md.Unused {
		if strings.Contains(key, ".") {
			continue
		}
		if cfg.Extensions == nil {
			cfg.Extensions = make(map[string]interface{})
		}
		cfg.Extensions[key] = raw[key]
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// globalConfigPath returns the path of the global chordsync.yml.
func globalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "chordsync.yml")
}
