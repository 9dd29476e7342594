// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package secrets implements the two-store secret resolution system: an
// optional .env file plus a fixed set of well-known OS environment
// variables, with {{placeholder}} substitution for prompt templates and
// registration hooks so the logger and OutputGuard mask raw secret
// values wherever they appear. Loaded once at startup; read-only
// thereafter.
package secrets

import (
	"bufio"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/crucibleai/kernel/pkg/logger"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// wellKnownEnvKeys mirrors the fixed list of provider/adapter credential
// variables the original loads from the OS environment in addition to
// whatever the .env file supplies.
var wellKnownEnvKeys = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY",
	"OPENROUTER_API_KEY", "GROQ_API_KEY",
	"DISCORD_TOKEN", "TELEGRAM_TOKEN", "SLACK_TOKEN", "SLACK_APP_TOKEN",
	"NEO4J_PASSWORD", "WEAVIATE_API_KEY",
}

// SecretRegistry is the narrow slice of OutputGuard/logger a Manager
// registers known secret values with for masking.
type SecretRegistry interface {
	RegisterSecret(secret string)
}

// Manager loads secrets once from a .env file and the OS environment,
// then serves lookups and {{placeholder}} substitution read-only.
type Manager struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// Load reads envFile (if present; a missing file is not an error — only
// logged) and the well-known OS environment keys, and returns a
// read-only Manager.
func Load(envFile string) *Manager {
	m := &Manager{secrets: make(map[string]string)}
	m.loadEnvFile(envFile)
	m.loadOSEnv()
	return m
}

func (m *Manager) loadEnvFile(envFile string) {
	f, err := os.Open(envFile)
	if err != nil {
		logger.WarnCF("secrets", ".env file not found", map[string]any{"path": envFile})
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `'"`)
		if value != "" {
			m.secrets[key] = value
		}
	}
	logger.InfoCF("secrets", "loaded secrets from .env", map[string]any{"count": len(m.secrets)})
}

func (m *Manager) loadOSEnv() {
	for _, key := range wellKnownEnvKeys {
		if val := os.Getenv(key); val != "" {
			if _, exists := m.secrets[key]; !exists {
				m.secrets[key] = val
			}
		}
	}
}

// Get returns the secret value for key, falling back to the OS
// environment, then to def.
func (m *Manager) Get(key, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.secrets[key]; ok {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Has reports whether key is known, either in the loaded secret store or
// the OS environment.
func (m *Manager) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.secrets[key]; ok {
		return true
	}
	_, ok := os.LookupEnv(key)
	return ok
}

// ResolveConfigValue resolves a config.json-style "$ENV_VAR" reference
// to its actual value. Values not starting with "$" pass through
// unchanged.
func (m *Manager) ResolveConfigValue(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}
	return m.Get(strings.TrimPrefix(value, "$"), value)
}

// ReplacePlaceholders substitutes every {{name}} occurrence in text with
// its resolved secret value. An unresolved placeholder is left as-is
// (safer than surfacing an error to the LLM) and logged.
func (m *Manager) ReplacePlaceholders(text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v := m.Get(key, ""); v != "" {
			return v
		}
		logger.WarnCF("secrets", "unresolved placeholder", map[string]any{"key": key})
		return match
	})
}

// MaskInText replaces every known secret value appearing verbatim in
// text with a partially-masked copy (first 3 chars + "***" + last 2
// chars when the value is longer than 5 characters).
func (m *Manager) MaskInText(text string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, value := range m.secrets {
		if len(value) > 3 && strings.Contains(text, value) {
			masked := value[:3] + "***"
			if len(value) > 5 {
				masked += value[len(value)-2:]
			}
			text = strings.ReplaceAll(text, value, masked)
		}
	}
	return text
}

// RegisterWithGuard registers every secret of length >3 with the given
// registry (the logger or OutputGuard) so raw values are masked in any
// subsequent output, per spec.md's known-secret replacement layer.
func (m *Manager) RegisterWithGuard(registry SecretRegistry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, value := range m.secrets {
		if len(value) > 3 {
			registry.RegisterSecret(value)
		}
	}
}

// AvailableKeys lists known secret key names, never their values.
func (m *Manager) AvailableKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.secrets))
	for k := range m.secrets {
		keys = append(keys, k)
	}
	return keys
}
