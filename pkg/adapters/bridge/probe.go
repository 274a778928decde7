package bridge

import (
	"os"
	"path/filepath"
)

// Profile stores that exist once the browser completed a login.
var profileStores = []string{
	filepath.Join("Default", "IndexedDB"),
	filepath.Join("Default", "Local Storage"),
}

// ProfileProbe reports whether dir holds a browser profile that completed a
// login. It is meant for file.WithProbe.
func ProfileProbe(dir string) bool {
	for _, store := range profileStores {
		entries, err := os.ReadDir(filepath.Join(dir, store))
		if err != nil || len(entries) == 0 {
			return false
		}
	}
	return true
}
