/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/spf13/cobra"
)

const testNavigation = `[
  {
    "name": "常用工具",
    "subcategories": [
      {
        "name": "搜索",
        "websites": [
          {"name": "百度", "url": "https://www.baidu.com", "description": "搜索引擎", "tags": ["搜索"]},
          {"name": "必应", "url": "https://www.bing.com", "description": "", "tags": []}
        ]
      }
    ]
  }
]`

func TestImportCmd_Flags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue interface{}
		flagType     string
	}{
		{
			name:         "file flag has correct default",
			flagName:     "file",
			defaultValue: "",
			flagType:     "string",
		},
		{
			name:         "skip-images flag has correct default",
			flagName:     "skip-images",
			defaultValue: false,
			flagType:     "bool",
		},
		{
			name:         "batch-size flag has correct default",
			flagName:     "batch-size",
			defaultValue: 10,
			flagType:     "int",
		},
		{
			name:         "batch-delay flag has correct default",
			flagName:     "batch-delay",
			defaultValue: time.Second,
			flagType:     "duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag interface{}
			var err error

			switch tt.flagType {
			case "string":
				flag, err = importCmd.Flags().GetString(tt.flagName)
			case "int":
				flag, err = importCmd.Flags().GetInt(tt.flagName)
			case "bool":
				flag, err = importCmd.Flags().GetBool(tt.flagName)
			case "duration":
				flag, err = importCmd.Flags().GetDuration(tt.flagName)
			}

			if err != nil {
				t.Fatalf("Failed to get flag %s: %v", tt.flagName, err)
			}

			if flag != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag, tt.defaultValue)
			}
		})
	}
}

func TestImportCmd_FileIsRequired(t *testing.T) {
	f := importCmd.Flags().Lookup("file")
	if f == nil {
		t.Fatal("Expected --file to be defined")
	}
	if _, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; !ok {
		t.Error("Expected --file to be marked required")
	}
}

func TestImportCmd_SkipImages(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "navigation.json")
	if err := os.WriteFile(navPath, []byte(testNavigation), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "test.db")
	resetFlags(t, rootCmd, importCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{
		"import",
		"--config", writeConfigFile(t, "logging:\n  level: error\n"),
		"--db", dbPath,
		"--images-dir", filepath.Join(dir, "images"),
		"--file", navPath,
		"--skip-images",
		"--batch-delay", "0s",
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Imported 2 of 2 website(s)") {
		t.Errorf("Unexpected output: %q", out.String())
	}

	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	w, err := database.GetWebsiteByURL("https://www.baidu.com")
	if err != nil {
		t.Fatalf("GetWebsiteByURL() error = %v", err)
	}
	if w.Title != "百度" || w.Category != "常用工具" {
		t.Errorf("Unexpected website: %+v", w)
	}
	if w.Creator.Nickname != core.DefaultImportNickname {
		t.Errorf("Creator = %q, want %q", w.Creator.Nickname, core.DefaultImportNickname)
	}
	if w.Favicon != "" || w.Thumbnail != "" {
		t.Errorf("Expected no images with --skip-images, got %q %q", w.Favicon, w.Thumbnail)
	}
}
