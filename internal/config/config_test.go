package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every known key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "vision", cfg.OCREngine)
	assert.Equal(t, "us", cfg.GoogleCloudLocation)
	assert.Equal(t, "OCR_Import", cfg.GoogleSheetWorksheet)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 300*time.Second, cfg.OCRTimeout)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, "stderr", cfg.GetLoggerConfig().Output)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCR_ENGINE", " DocumentAI ")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "proj")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "proc")
	t.Setenv("GOOGLE_CLOUD_LOCATION", "eu")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("OCR_TIMEOUT", "45s")
	t.Setenv("BATCH_WORKERS", "12")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "documentai", cfg.OCREngine)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 12, cfg.BatchWorkers)

	dai := cfg.GetDocumentAIConfig()
	assert.Equal(t, "proj", dai.ProjectID)
	assert.Equal(t, "eu", dai.Location)
	assert.Equal(t, "proc", dai.ProcessorID)
	assert.Equal(t, 45*time.Second, dai.Timeout)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "docsheet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR: \":9090\"\nLOG_LEVEL: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)

	// The environment overrides the file.
	t.Setenv("HTTP_ADDR", ":7070")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{OCREngine: "vision", MaxUploadBytes: 1, BatchWorkers: 1, OCRTimeout: time.Second}
	assert.NoError(t, base.Validate())

	bad := base
	bad.OCREngine = "tesseract"
	assert.ErrorContains(t, bad.Validate(), "OCR_ENGINE")

	bad = base
	bad.OCREngine = "documentai"
	assert.ErrorContains(t, bad.Validate(), "GOOGLE_CLOUD_PROJECT")

	bad.GoogleCloudProject = "p"
	assert.ErrorContains(t, bad.Validate(), "DOCUMENT_AI_PROCESSOR_ID")

	bad = base
	bad.MaxUploadBytes = 0
	assert.ErrorContains(t, bad.Validate(), "MAX_UPLOAD_BYTES")

	bad = base
	bad.BatchWorkers = 0
	assert.ErrorContains(t, bad.Validate(), "BATCH_WORKERS")
}
