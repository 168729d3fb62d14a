// Package dism wraps the external DISM-style image-servicing tool behind the
// Executor interface so the servicing pipeline can be driven against a fake
// in tests instead of spawning real processes.
package dism

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/wimtool/wimtool/pkg/errors"
)

// outputTail limits how much tool output is carried into error messages.
const outputTail = 512

// CLI is the Executor backed by the real servicing tool binary.
type CLI struct {
	tool string
}

// NewCLI creates an executor that shells out to the given tool binary.
// An empty tool falls back to "dism" on PATH.
func NewCLI(tool string) *CLI {
	if tool == "" {
		tool = "dism"
	}
	return &CLI{tool: tool}
}

func (c *CLI) Mount(ctx context.Context, imagePath string, index int, mountDir string) error {
	return c.run(ctx, mountArgs(imagePath, index, mountDir))
}

func (c *CLI) AddDriver(ctx context.Context, mountDir, driverDir string, opts DriverAddOptions) error {
	return c.run(ctx, addDriverArgs(mountDir, driverDir, opts))
}

func (c *CLI) AddPackage(ctx context.Context, mountDir, packagePath string) error {
	return c.run(ctx, addPackageArgs(mountDir, packagePath))
}

func (c *CLI) ListPackages(ctx context.Context, mountDir string) (string, error) {
	args := listPackagesArgs(mountDir)
	slog.Info("dism_exec", "tool", c.tool, "args", strings.Join(args, " "))

	out, err := exec.CommandContext(ctx, c.tool, args...).CombinedOutput()
	if err != nil {
		slog.Error("dism_exec_failed", "tool", c.tool, "args", strings.Join(args, " "), "error", err)
		return "", errors.Wrap(toolError(err, out), "list packages failed")
	}
	return string(out), nil
}

func (c *CLI) Unmount(ctx context.Context, mountDir string, commit bool) error {
	return c.run(ctx, unmountArgs(mountDir, commit))
}

func (c *CLI) run(ctx context.Context, args []string) error {
	slog.Info("dism_exec", "tool", c.tool, "args", strings.Join(args, " "))

	out, err := exec.CommandContext(ctx, c.tool, args...).CombinedOutput()
	if err != nil {
		slog.Error("dism_exec_failed", "tool", c.tool, "args", strings.Join(args, " "), "error", err)
		return toolError(err, out)
	}
	return nil
}

// toolError folds the exit status and the tail of the tool's console output
// into one error, since the tool reports nothing structured.
func toolError(err error, out []byte) error {
	tail := strings.TrimSpace(string(out))
	if len(tail) > outputTail {
		tail = tail[len(tail)-outputTail:]
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if tail == "" {
			return fmt.Errorf("tool exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("tool exited with code %d: %s", exitErr.ExitCode(), tail)
	}
	return err
}

func mountArgs(imagePath string, index int, mountDir string) []string {
	return []string{
		"/Mount-Image",
		fmt.Sprintf("/ImageFile:%s", imagePath),
		fmt.Sprintf("/Index:%d", index),
		fmt.Sprintf("/MountDir:%s", mountDir),
	}
}

func addDriverArgs(mountDir, driverDir string, opts DriverAddOptions) []string {
	args := []string{
		fmt.Sprintf("/Image:%s", mountDir),
		"/Add-Driver",
		fmt.Sprintf("/Driver:%s", driverDir),
		"/Recurse",
	}
	if opts.ForceUnsigned {
		args = append(args, "/ForceUnsigned")
	}
	return args
}

func addPackageArgs(mountDir, packagePath string) []string {
	return []string{
		fmt.Sprintf("/Image:%s", mountDir),
		"/Add-Package",
		fmt.Sprintf("/PackagePath:%s", packagePath),
	}
}

func listPackagesArgs(mountDir string) []string {
	return []string{
		fmt.Sprintf("/Image:%s", mountDir),
		"/Get-Packages",
	}
}

func unmountArgs(mountDir string, commit bool) []string {
	mode := "/Commit"
	if !commit {
		mode = "/Discard"
	}
	return []string{
		"/Unmount-Image",
		fmt.Sprintf("/MountDir:%s", mountDir),
		mode,
	}
}
