package engine

import (
	"fmt"
	"os/exec"
	"runtime"
)

// showPathInFileManager opens the host OS's file manager at path, the only
// place this engine shells out to an external process (spec §6
// showPathInFileManager). No third-party cross-platform "open" library was
// retrieved for this pack, so this is justified as a stdlib os/exec call
// rather than a hand-rolled platform abstraction (see DESIGN.md).
func showPathInFileManager(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s in file manager: %s", path, err)
	}

	return nil
}
