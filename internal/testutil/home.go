// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetHomeDir points the platform's home and config directory variables at dir
// and returns a cleanup function restoring the original values.
//
// Platform handling:
//   - Windows: Sets USERPROFILE and APPDATA
//   - Linux/macOS: Sets HOME and XDG_CONFIG_HOME (dir/.config)
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	var restores []func()
	switch runtime.GOOS {
	case "windows":
		restores = append(restores,
			MustSetenv(t, "USERPROFILE", dir),
			MustSetenv(t, "APPDATA", dir),
		)
	default:
		restores = append(restores,
			MustSetenv(t, "HOME", dir),
			MustSetenv(t, "XDG_CONFIG_HOME", dir+"/.config"),
		)
	}
	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}
