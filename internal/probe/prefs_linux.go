//go:build linux

package probe

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"signalscribe/pkg/logger"
)

// Java preferences on Linux live in per-package XML files under
// ~/.java/.userPrefs.
type javaPrefs struct {
	Entries []struct {
		Key   string `xml:"key,attr"`
		Value string `xml:"value,attr"`
	} `xml:"entry"`
}

func recordingDirFromPreferences() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	xmlPath := filepath.Join(home, ".java", ".userPrefs",
		"io", "github", "dsheirer", "preference", "directory", "prefs.xml")

	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return ""
	}

	var prefs javaPrefs
	if err := xml.Unmarshal(data, &prefs); err != nil {
		logger.Debug("could not parse SDRTrunk preferences", "path", xmlPath, "error", err)
		return ""
	}

	for _, e := range prefs.Entries {
		if e.Key == "directory.recording" {
			return e.Value
		}
	}
	return ""
}
