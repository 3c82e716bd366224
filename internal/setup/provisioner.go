// Package setup provisions a suite workspace: the working directories, the
// environment file templated from its example, and executable permission bits
// on helper scripts. Steps run in order and the first failure aborts the run.
package setup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// WorkspaceDirs are the directories every workspace carries.
var WorkspaceDirs = []string{"logs", "backups", "data", "outputs"}

// Environment file names inside the workspace.
const (
	EnvFileName     = ".env"
	EnvExampleName  = ".env.example"
	envFileMode     = 0o600
	scriptFileMode  = 0o755
	defaultEnvStubs = "# Claude Optimization Suite environment\nCLAUDE_API_KEY=your-api-key-here\n"
)

// Step is one provisioning action.
type Step struct {
	// Name identifies the step in logs and errors.
	Name string

	// Run performs the action. Steps must be safe to run repeatedly.
	Run func() error
}

// Provisioner prepares a workspace rooted at Dir.
type Provisioner struct {
	// Dir is the workspace root.
	Dir string

	// Scripts are files marked executable when present; missing entries are
	// skipped without error.
	Scripts []string
}

// Run executes all provisioning steps in order. The first failing step aborts
// the run and no later step executes.
func (p *Provisioner) Run() error {
	for _, step := range p.steps() {
		if err := step.Run(); err != nil {
			return fmt.Errorf("setup: step %q failed: %w", step.Name, err)
		}
		log.Infof("setup: %s done", step.Name)
	}
	return nil
}

// steps assembles the ordered step list.
func (p *Provisioner) steps() []Step {
	return []Step{
		{Name: "create directories", Run: p.ensureDirs},
		{Name: "write environment file", Run: p.ensureEnvFile},
		{Name: "mark scripts executable", Run: p.markExecutable},
	}
}

// ensureDirs creates the workspace directories. Existing directories are left
// untouched.
func (p *Provisioner) ensureDirs() error {
	for _, dir := range WorkspaceDirs {
		if err := os.MkdirAll(filepath.Join(p.Dir, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ensureEnvFile templates .env from .env.example. When .env already exists it
// is never touched, so a second run is a no-op. When the example file is also
// missing, a minimal stub is written instead.
func (p *Provisioner) ensureEnvFile() error {
	envPath := filepath.Join(p.Dir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		log.Debugf("setup: %s already exists, leaving it alone", EnvFileName)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	examplePath := filepath.Join(p.Dir, EnvExampleName)
	src, err := os.Open(examplePath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(envPath, []byte(defaultEnvStubs), envFileMode)
		}
		return err
	}
	defer func() {
		if errClose := src.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close env example file")
		}
	}()

	dst, err := os.OpenFile(envPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, envFileMode)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := dst.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close env file")
		}
	}()

	if _, err = io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

// markExecutable sets the executable bits on each configured script that
// exists. Missing scripts are skipped.
func (p *Provisioner) markExecutable() error {
	for _, script := range p.Scripts {
		path := script
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.Dir, script)
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := os.Chmod(path, scriptFileMode); err != nil {
			return err
		}
	}
	return nil
}
