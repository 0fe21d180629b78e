package static

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const successText = `__TITLE__
Login Successful
Welcome back to your dashboard, __NAME__.`

func SuccessText(title, name string) string {
	if name == "" {
		name = "agent"
	}
	return strings.NewReplacer("__TITLE__", title, "__NAME__", name).Replace(successText)
}

const failedText = `__TITLE__
Login Failed
__REASON__`

func FailedText(title, reason string) string {
	if reason == "" {
		reason = "Login failed. Please try again."
	}
	return strings.NewReplacer("__TITLE__", title, "__REASON__", reason).Replace(failedText)
}

// NeverActive is shown for tourists without a last activity time.
const NeverActive = "Never"

// Open attempts an os specific opening of urls
func Open(uri string) error {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", uri).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll.FileProtocolHandler", uri).Start()
	case "darwin":
		err = exec.Command("open", uri).Start()
	default:
		err = errors.New("unsupported platform, cannot open browser")
	}

	return err
}

func IsDesktop() bool {
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		return true
	}

	return false
}
