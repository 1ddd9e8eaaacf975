package capability

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Policy is the configurable part of the gate
type Policy struct {
	// ExitCode is the only exit status the host may request
	ExitCode int `yaml:"exitCode"`

	// ReadablePrefixes restricts file reads, empty allows every path
	ReadablePrefixes []string `yaml:"readablePrefixes"`

	// EnvKeys lists the environment variables passed to untrusted code
	EnvKeys []string `yaml:"envKeys"`
}

var defaultEnvKeys = []string{"PATH", "LANG", "LC_ALL", "TZ"}

// DefaultPolicy returns the policy used when no file is configured
func DefaultPolicy(exitCode int) Policy {
	return Policy{
		ExitCode: exitCode,
		EnvKeys:  defaultEnvKeys,
	}
}

// LoadPolicy reads a YAML policy. A missing file yields the default policy.
func LoadPolicy(name string, exitCode int) (Policy, error) {
	p := DefaultPolicy(exitCode)
	b, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("load policy: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("load policy %s: %w", name, err)
	}
	return p, nil
}
