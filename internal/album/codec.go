package album

import (
	"encoding/json"
	"log/slog"
)

// SettingsKey is the SettingsStore key holding the visibility map
const SettingsKey = "album_visibility"

const codecVersion = 1

// visibilityDocument is the persisted form:
//
//	{"version":1,"albums":{"<albumID>":true}}
//
// Documents without a version are the legacy flat map {"<albumID>":false}.
type visibilityDocument struct {
	Version int                        `json:"version"`
	Albums  map[string]json.RawMessage `json:"albums"`
}

// encodeVisibility serializes the map in the current schema
func encodeVisibility(visibility map[string]bool) ([]byte, error) {
	albums := make(map[string]json.RawMessage, len(visibility))
	for id, visible := range visibility {
		if visible {
			albums[id] = json.RawMessage("true")
		} else {
			albums[id] = json.RawMessage("false")
		}
	}
	return json.Marshal(visibilityDocument{Version: codecVersion, Albums: albums})
}

// decodeVisibility never fails: entries that are missing or not booleans are
// dropped so the album defaults to visible. An unreadable document yields an
// empty map.
func decodeVisibility(data []byte, logger *slog.Logger) map[string]bool {
	visibility := make(map[string]bool)
	if len(data) == 0 {
		return visibility
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		logger.Warn("discarding unreadable visibility settings", "error", err)
		return visibility
	}

	entries := top
	if rawVersion, ok := top["version"]; ok {
		var version int
		if err := json.Unmarshal(rawVersion, &version); err != nil {
			logger.Warn("visibility settings have a malformed version", "error", err)
		} else if version > codecVersion {
			logger.Warn("visibility settings written by a newer version", "version", version)
		}
		entries = nil
		if rawAlbums, ok := top["albums"]; ok {
			if err := json.Unmarshal(rawAlbums, &entries); err != nil {
				logger.Warn("visibility settings have malformed albums", "error", err)
				return visibility
			}
		}
	}

	for id, raw := range entries {
		var visible bool
		if err := json.Unmarshal(raw, &visible); err != nil {
			logger.Debug("skipping malformed visibility entry", "albumID", id)
			continue
		}
		visibility[id] = visible
	}
	return visibility
}
