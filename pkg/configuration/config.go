package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the settings of an INI file, keyed by section and key.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// sectionOrder is the order sections are written in.
var sectionOrder = []string{"Interpreter", "Store", "Console", "TLS", "JWT", "Debug"}

// Initialize loads the global configuration from configPath, writing a
// default file first when none exists. A sibling "<name>.local<ext>" file
// overrides individual keys.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		if local := localPath(configPath); local != "" {
			if _, statErr := os.Stat(local); statErr == nil {
				err = globalConfig.loadLocalConfig(local)
			}
		}
	})
	return err
}

// localPath returns the override file belonging to configPath.
func localPath(configPath string) string {
	ext := filepath.Ext(configPath)
	base := strings.TrimSuffix(configPath, ext)
	if base == "" {
		return ""
	}
	return base + ".local" + ext
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := config.parse(file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return config, nil
}

// loadLocalConfig overlays the keys of filePath.
func (c *Config) loadLocalConfig(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parse(file)
}

// parse reads "[Section]" headers and "key = value" lines. Blank lines and
// lines starting with ';' or '#' are skipped; keys outside a section are
// ignored.
func (c *Config) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	currentSection := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok && currentSection != "" {
			c.settings[currentSection][strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return scanner.Err()
}

// createDefaultConfig fills in every key the program reads.
func (c *Config) createDefaultConfig() {
	c.settings["Interpreter"] = map[string]string{
		"max_variables":        "512",
		"max_call_depth":       "50",
		"max_gosub_depth":      "100",
		"max_for_loops":        "20",
		"max_do_loops":         "20",
		"max_expression_depth": "100",
		"max_array_elements":   "1048576",
		"scratch_size_kb":      "64",
		"default_type":         "FLOAT",
		"option_base":          "0",
		"trace":                "false",
	}

	c.settings["Store"] = map[string]string{
		"db_path": "retrobasic.db",
	}

	c.settings["Console"] = map[string]string{
		"listen":               "127.0.0.1:8088",
		"input_timeout":        "10m",
		"max_run_time":         "30m",
		"write_wait_timeout":   "10s",
		"pong_timeout":         "60s",
		"max_message_size_kb":  "16",
		"require_token":        "true",
		"allowed_origins":      "http://localhost:8088,http://127.0.0.1:8088",
		"max_clients":          "100",
		"max_messages_per_min": "200",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":         "false",
		"enable_letsencrypt": "false",
		"domain":             "",
		"letsencrypt_email":  "",
		"cert_cache_dir":     "./certs",
		"cert_file":          "./certs/server.crt",
		"key_file":           "./certs/server.key",
		"redirect_listen":    "",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "",
		"token_expiration_hours": "24",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "false",
		"log_level":            "INFO",
		"log_file":             "retrobasic.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_tokenizer":        "false",
		"log_program":          "true",
		"log_variables":        "false",
		"log_execution":        "true",
		"log_store":            "true",
		"log_console":          "true",
		"log_auth":             "true",
		"log_config":           "true",
		"log_tls":              "true",
		"log_general":          "true",
	}
}

func (c *Config) saveToFile() error {
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	w.WriteString("; retrobasic configuration file\n")
	w.WriteString("; Generated automatically - modify with care\n")
	w.WriteString(";\n\n")

	written := make(map[string]bool)
	sections := append([]string(nil), sectionOrder...)
	var extra []string
	for name := range c.settings {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	sections = append(sections, extra...)

	for _, section := range sections {
		settings, exists := c.settings[section]
		if !exists || written[section] {
			continue
		}
		written[section] = true
		fmt.Fprintf(w, "[%s]\n", section)
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

// GetString returns a setting, or defaultValue when it is missing.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	if sectionMap, exists := globalConfig.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt returns an integer setting.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetFloat returns a float setting.
func GetFloat(section, key string, defaultValue float64) float64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(str, 64); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean setting.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration setting such as "30s".
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs of a section.
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	if globalConfig == nil {
		return result
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	for key, value := range globalConfig.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString changes a setting in memory.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the configuration back to its file.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.saveToFile()
}
