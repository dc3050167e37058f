package client

import (
	"debug/elf"
	"strings"

	"github.com/coreperf-io/coreperf/client/errs"
)

// CoreResolver looks up the version of a core.
type CoreResolver interface {
	Resolve(core string) (string, error)
}

// WorkloadValidator checks that a file is a binary the service can run.
type WorkloadValidator interface {
	Validate(path string) error
}

// WorkloadValidatorFunc adapts a function to a WorkloadValidator.
type WorkloadValidatorFunc func(path string) error

// Validate calls f(path).
func (f WorkloadValidatorFunc) Validate(path string) error {
	return f(path)
}

const defaultCoreVersion = "latest"

// staticCoreResolver resolves cores from the cores section of the config. An
// empty table accepts every core at the default version.
type staticCoreResolver map[string]string

func (s staticCoreResolver) Resolve(core string) (string, error) {
	if len(s) == 0 {
		return defaultCoreVersion, nil
	}
	version, ok := s[strings.ToLower(core)]
	if !ok {
		return "", errs.New(errs.Configuration, "unknown core %q", core)
	}
	return version, nil
}

// elfValidator accepts ELF executables.
type elfValidator struct{}

func (elfValidator) Validate(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return errs.Wrapf(errs.Validation, err, "%s is not a valid ELF file", path)
	}
	defer f.Close()
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return errs.New(errs.Validation, "%s is not an executable (%s)", path, f.Type)
	}
	return nil
}
