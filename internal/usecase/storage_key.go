package usecase

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxStoredFilenameLength = 120

// StorageKey derives the object key of an asset. The asset id makes every key
// unique, so keys are never shared between assets.
//
//	companies/<company>/versions/<version>/<bucket>[/submodels/<submodel>]/<asset>/<filename>
func StorageKey(companyID, versionID uuid.UUID, kind AssetKind, submodelID *uuid.UUID, assetID uuid.UUID, filename string) string {
	parts := []string{
		"companies", companyID.String(),
		"versions", versionID.String(),
		kind.StorageBucket(),
	}
	if submodelID != nil {
		parts = append(parts, "submodels", submodelID.String())
	}
	parts = append(parts, assetID.String(), SanitizeFilename(filename))
	return path.Join(parts...)
}

// SanitizeFilename keeps ASCII letters, digits, dot, dash and underscore;
// everything else becomes an underscore.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	s := strings.Trim(b.String(), "._")
	if len(s) > maxStoredFilenameLength {
		ext := path.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		s = s[:maxStoredFilenameLength-len(ext)] + ext
	}
	if s == "" {
		return "file"
	}
	return s
}
