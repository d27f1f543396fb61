package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs directory created in production mode")
	}
	l := Get(CategoryTraining)
	l.Info("should go nowhere")
}

func TestCategoryGating(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()
	err := Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"training": true, "decoding": false},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !IsCategoryEnabled(CategoryTraining) {
		t.Fatalf("IsCategoryEnabled(training) = false, want true")
	}
	if IsCategoryEnabled(CategoryDecoding) {
		t.Fatalf("IsCategoryEnabled(decoding) = true, want false")
	}
	// Unlisted categories default to enabled.
	if !IsCategoryEnabled(CategoryModel) {
		t.Fatalf("IsCategoryEnabled(model) = false, want true")
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "info"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	Training("classifier %s trained", "inform(food=chinese)")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "training") {
			data, err := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !strings.Contains(string(data), "inform(food=chinese)") {
				t.Fatalf("log file missing message, got %q", string(data))
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("no training log file written")
	}
}
