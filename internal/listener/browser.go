package listener

import (
	"fmt"
	"os/exec"
	"runtime"
)

// browserLauncher starts the browser command. Tests replace it.
var browserLauncher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// OpenBrowser opens url in the default browser on Linux, macOS and Windows.
// It does not wait for the browser to exit.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := browserLauncher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
