// Package config holds the runtime configuration for the photo booth.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the booth reads.
const EnvPrefix = "PHOTOBOOTH_"

// Classifier backends.
const (
	ClassifierDNN  = "dnn"
	ClassifierYOLO = "yolo"
	ClassifierMock = "mock"
)

// Config holds every recognized option. Zero values are never used directly;
// start from Default() or Load().
type Config struct {
	// Camera
	CameraID int
	Width    int
	Height   int
	Backends []string

	// Classifier
	Classifier       string
	ModelPath        string
	ClassNames       []string
	TargetGesture    string
	TriggerThreshold float64
	HandScript       string

	// Pipeline and booth
	CountdownSeconds int
	SampleInterval   int
	MinFrames        int
	Downscale        bool

	// Persistence
	CapturesDir string
	DBPath      string
	DatabaseURL string

	// Serving
	Addr           string
	StaticDir      string
	PluginDir      string
	JPEGQuality    int
	StreamInterval time.Duration

	LogLevel string
	Tray     bool
}

// Default returns a Config with the booth's reference behavior.
func Default() Config {
	dataDir := DataDir()
	return Config{
		CameraID:         0,
		Width:            1280,
		Height:           720,
		Classifier:       ClassifierDNN,
		ModelPath:        filepath.Join("models", "gesture_classifier.onnx"),
		ClassNames:       []string{"fist", "palm"},
		TargetGesture:    "palm",
		TriggerThreshold: 0.85,
		CountdownSeconds: 3,
		SampleInterval:   5,
		MinFrames:        5,
		Downscale:        true,
		CapturesDir:      "captures",
		DBPath:           filepath.Join(dataDir, "photobooth.db"),
		Addr:             ":8080",
		PluginDir:        filepath.Join(dataDir, "plugins"),
		JPEGQuality:      90,
		StreamInterval:   33 * time.Millisecond,
		LogLevel:         "info",
	}
}

// DataDir returns ~/.photobooth, or ".photobooth" when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".photobooth"
	}
	return filepath.Join(home, ".photobooth")
}

// Load reads an optional .env file, then overlays PHOTOBOOTH_* environment
// variables on top of Default().
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	cfg.CameraID = getEnvAsInt("CAMERA", cfg.CameraID)
	cfg.Width = getEnvAsInt("WIDTH", cfg.Width)
	cfg.Height = getEnvAsInt("HEIGHT", cfg.Height)
	cfg.Backends = getEnvAsList("CAMERA_BACKENDS", cfg.Backends)
	cfg.Classifier = getEnv("CLASSIFIER", cfg.Classifier)
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.ClassNames = getEnvAsList("CLASS_NAMES", cfg.ClassNames)
	cfg.TargetGesture = getEnv("TARGET_GESTURE", cfg.TargetGesture)
	cfg.TriggerThreshold = getEnvAsFloat("TRIGGER_THRESHOLD", cfg.TriggerThreshold)
	cfg.HandScript = getEnv("HAND_SCRIPT", cfg.HandScript)
	cfg.CountdownSeconds = getEnvAsInt("COUNTDOWN", cfg.CountdownSeconds)
	cfg.SampleInterval = getEnvAsInt("SAMPLE_INTERVAL", cfg.SampleInterval)
	cfg.MinFrames = getEnvAsInt("MIN_FRAMES", cfg.MinFrames)
	cfg.Downscale = getEnvAsBool("DOWNSCALE", cfg.Downscale)
	cfg.CapturesDir = getEnv("CAPTURES_DIR", cfg.CapturesDir)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.PluginDir = getEnv("PLUGIN_DIR", cfg.PluginDir)
	cfg.JPEGQuality = getEnvAsInt("JPEG_QUALITY", cfg.JPEGQuality)
	cfg.StreamInterval = getEnvAsDuration("STREAM_INTERVAL", cfg.StreamInterval)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Tray = getEnvAsBool("TRAY", cfg.Tray)

	return cfg, nil
}

// Validate reports the first option that cannot drive the booth.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	case c.TriggerThreshold <= 0 || c.TriggerThreshold > 1:
		return fmt.Errorf("trigger threshold %.2f outside (0, 1]", c.TriggerThreshold)
	case c.CountdownSeconds < 1:
		return fmt.Errorf("countdown must be at least 1 second, got %d", c.CountdownSeconds)
	case c.SampleInterval < 1:
		return fmt.Errorf("sample interval must be at least 1 frame, got %d", c.SampleInterval)
	case c.MinFrames < 1:
		return fmt.Errorf("min frames must be at least 1, got %d", c.MinFrames)
	case c.TargetGesture == "":
		return errors.New("target gesture is required")
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("jpeg quality %d outside [1, 100]", c.JPEGQuality)
	}

	switch c.Classifier {
	case ClassifierDNN:
		if len(c.ClassNames) != 2 {
			return fmt.Errorf("dnn classifier needs exactly 2 class names, got %d", len(c.ClassNames))
		}
	case ClassifierYOLO:
		if len(c.ClassNames) == 0 {
			return errors.New("yolo classifier needs class names")
		}
	case ClassifierMock:
	default:
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}

	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
