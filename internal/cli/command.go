package cli

import (
	"fmt"
	"os"

	"github.com/opshell/console-bridge-go/internal/config"
)

// BuildEnvironment constructs the environment variables for the console
// process.
//
// The automation marker tells the console it is invoked programmatically
// rather than from an interactive terminal, so it suppresses pagers, color
// codes, and any prompts other than the documented ready marker.
func BuildEnvironment(options *config.Options) []string {
	// Start with current environment
	env := os.Environ()

	// Mark the invocation as programmatic
	env = append(env, config.AutomationEnvVar+"=1")
	env = append(env, "NO_COLOR=1")
	env = append(env, "TERM=dumb")
	env = append(env, "PAGER=cat")

	// Add or override with user-provided environment variables
	for key, value := range options.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
