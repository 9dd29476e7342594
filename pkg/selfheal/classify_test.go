package selfheal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Network(t *testing.T) {
	c := Classify(errors.New("dial tcp: connection refused"), "http_tool", nil)
	assert.Equal(t, CategoryNetwork, c.Category)
	assert.Equal(t, SeverityRepairable, c.Severity)
}

func TestClassify_Security_IsCritical(t *testing.T) {
	c := Classify(errors.New("401 unauthorized: invalid credentials"), "api_tool", nil)
	assert.Equal(t, CategorySecurity, c.Category)
	assert.Equal(t, SeverityCritical, c.Severity)
}

func TestClassify_Data_IsCritical(t *testing.T) {
	c := Classify(errors.New("database is corrupt, checksum mismatch"), "db_tool", nil)
	assert.Equal(t, CategoryData, c.Category)
	assert.Equal(t, SeverityCritical, c.Severity)
}

func TestClassify_Unknown_FallsBackRepairable(t *testing.T) {
	c := Classify(errors.New("something entirely unrecognized happened"), "mystery_tool", nil)
	assert.Equal(t, CategoryUnknown, c.Category)
	assert.Equal(t, SeverityRepairable, c.Severity)
}

func TestClassify_Dependency(t *testing.T) {
	c := Classify(errors.New("no module named 'requests'"), "py_tool", nil)
	assert.Equal(t, CategoryDependency, c.Category)
}

func TestClassify_Config(t *testing.T) {
	c := Classify(errors.New("permission denied accessing config file"), "fs_tool", nil)
	assert.Equal(t, CategoryConfig, c.Category)
}

func TestIsHealableError(t *testing.T) {
	assert.True(t, IsHealableError(errors.New("connection refused")))
	assert.False(t, IsHealableError(errors.New("forbidden: unauthorized access")))
}
