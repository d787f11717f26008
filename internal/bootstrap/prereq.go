// Package bootstrap checks that the programs a tool server needs are
// installed before anything is spawned.
package bootstrap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tlee933/rai/internal/config"
	"github.com/tlee933/rai/internal/toolserver"
)

// LookPathFunc resolves a program name the way exec.LookPath does.
type LookPathFunc func(file string) (string, error)

// MissingRuntimeError reports a server whose command, or the program an
// env(1) wrapper would run, is not installed.
type MissingRuntimeError struct {
	Server  string
	Runtime string
}

func (e *MissingRuntimeError) Error() string {
	return fmt.Sprintf("%s: required runtime %q not found in PATH", e.Server, e.Runtime)
}

// LookPath is exec.LookPath, except that a name containing a path
// separator must name an existing regular file.
func LookPath(file string) (string, error) {
	if strings.ContainsRune(file, os.PathSeparator) {
		info, err := os.Stat(file)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", file)
		}
		return file, nil
	}
	return exec.LookPath(file)
}

// CheckPrerequisites returns a *MissingRuntimeError when server cannot
// be started on this machine.
func CheckPrerequisites(server config.ServerConfig) error {
	return CheckWithLookup(server, LookPath)
}

// CheckWithLookup is CheckPrerequisites with a custom resolver.
func CheckWithLookup(server config.ServerConfig, lookup LookPathFunc) error {
	if lookup == nil {
		lookup = LookPath
	}

	command := strings.TrimSpace(server.Command)
	if command == "" {
		return &MissingRuntimeError{Server: server.Name, Runtime: ""}
	}
	if _, err := lookup(command); err != nil {
		return &MissingRuntimeError{Server: server.Name, Runtime: command}
	}

	if filepath.Base(command) != "env" {
		return nil
	}
	wrapped := envWrappedCommand(server.Args)
	if wrapped == "" {
		return nil
	}
	if _, err := lookup(wrapped); err != nil {
		return &MissingRuntimeError{Server: server.Name, Runtime: wrapped}
	}
	return nil
}

// MissingCommands lists the programs the catalog's tools run that are not
// installed, sorted and without duplicates. Probe-only tools are skipped:
// reporting absent binaries is what they do.
func MissingCommands(c toolserver.Catalog, lookup LookPathFunc) []string {
	if lookup == nil {
		lookup = LookPath
	}
	seen := make(map[string]bool)
	var missing []string
	for _, tool := range c.Tools {
		if len(tool.Command) == 0 {
			continue
		}
		bin := tool.Command[0]
		if seen[bin] {
			continue
		}
		seen[bin] = true
		if _, err := lookup(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	sort.Strings(missing)
	return missing
}

// envWrappedCommand finds the program in an env(1) argument list, skipping
// options and NAME=value assignments.
func envWrappedCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		token := strings.TrimSpace(args[i])
		switch {
		case token == "":
			continue
		case token == "--":
			return firstProgram(args[i+1:])
		case token == "-S" || token == "--split-string":
			if i+1 >= len(args) {
				return ""
			}
			i++
			if prog := envWrappedCommand(strings.Fields(args[i])); prog != "" {
				return prog
			}
		case strings.HasPrefix(token, "-S="), strings.HasPrefix(token, "--split-string="):
			raw := token[strings.IndexByte(token, '=')+1:]
			if prog := envWrappedCommand(strings.Fields(raw)); prog != "" {
				return prog
			}
		case token == "-u" || token == "--unset" || token == "-C" || token == "--chdir":
			i++
		case strings.HasPrefix(token, "-"):
			continue
		case strings.Index(token, "=") > 0:
			continue
		default:
			return unquote(token)
		}
	}
	return ""
}

func firstProgram(args []string) string {
	for _, raw := range args {
		token := unquote(strings.TrimSpace(raw))
		if token == "" || strings.Index(token, "=") > 0 {
			continue
		}
		return token
	}
	return ""
}

func unquote(token string) string {
	if len(token) < 2 {
		return token
	}
	first, last := token[0], token[len(token)-1]
	if (first == '\'' || first == '"') && first == last {
		return token[1 : len(token)-1]
	}
	return token
}
