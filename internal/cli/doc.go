// Package cli provides discovery and invocation building for the platform
// console binary.
//
// Discovery searches in the following order:
//  1. Explicit path in Config.ConsolePath (if provided)
//  2. System PATH
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// BuildEnvironment constructs the child environment, including the automation
// marker variable that tells the console it is being driven programmatically.
package cli
