package review

import (
	"log/slog"
	"os/exec"
	"runtime"
)

// openViewer hands the dossier to the platform PDF viewer. Failure is
// not fatal: the operator can still open the file by path.
func openViewer(path string, logger *slog.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		logger.Warn("could not open PDF viewer", "path", path, "error", err)
		return
	}
	// Release the child so a long-lived viewer does not block exit.
	go func() { _ = cmd.Wait() }()
}
