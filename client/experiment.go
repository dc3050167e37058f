package client

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coreperf-io/coreperf/client/bundle"
	"github.com/coreperf-io/coreperf/client/errs"
)

const (
	experimentTimeFormat = "20060102-150405"
	otpSize              = 32
)

// Workload is an executable shipped with an experiment.
type Workload struct {
	ElfPath     string `json:"elf"`
	ArchiveName string `json:"archive_name"`
}

// ReportSpec is a report requested for one workload of an experiment.
type ReportSpec struct {
	ID           string `json:"uuid"`
	Type         string `json:"type"`
	ExperimentID string `json:"experiment_uuid"`
	ElfName      string `json:"elf"`
	ArchiveName  string `json:"archive_name"`
}

// ExperimentConfig describes one experiment. It is built once per run and is
// serialized into the uploaded package as config.json. It is not modified
// after construction.
type ExperimentConfig struct {
	id          string
	core        string
	coreVersion string
	workloads   []Workload
	reports     []ReportSpec
	otp         string
}

type experimentJSON struct {
	ID          string       `json:"experiment_uuid"`
	Core        string       `json:"core"`
	CoreVersion string       `json:"core_version"`
	Workloads   []Workload   `json:"workloads"`
	Reports     []ReportSpec `json:"reports"`
	OTP         string       `json:"otp"`
}

// newExperimentConfig builds the config for an experiment started at now.
// Workloads sharing a base name get distinct archive names.
func newExperimentConfig(now time.Time, core, coreVersion string, paths, reportTypes []string) (*ExperimentConfig, error) {
	if core == "" {
		return nil, errs.New(errs.Experiment, "no core set")
	}
	if len(paths) == 0 {
		return nil, errs.New(errs.Experiment, "no workload added")
	}
	otp, err := newOTP()
	if err != nil {
		return nil, err
	}
	exp := &ExperimentConfig{
		id:          newExperimentID(now),
		core:        core,
		coreVersion: coreVersion,
		workloads:   archiveNames(paths),
		otp:         otp,
	}
	for _, w := range exp.workloads {
		for _, t := range reportTypes {
			exp.reports = append(exp.reports, ReportSpec{
				ID:           uuid.New().String(),
				Type:         t,
				ExperimentID: exp.id,
				ElfName:      filepath.Base(w.ElfPath),
				ArchiveName:  w.ArchiveName,
			})
		}
	}
	return exp, nil
}

func newExperimentID(now time.Time) string {
	return now.UTC().Format(experimentTimeFormat) + "_" + uuid.New().String()
}

func newOTP() (string, error) {
	b := make([]byte, otpSize)
	if _, err := rand.Read(b); err != nil {
		return "", errs.Wrap(errs.Encryption, err, "failed to generate one-time password")
	}
	return hex.EncodeToString(b), nil
}

func archiveNames(paths []string) []Workload {
	used := make(map[string]bool, len(paths))
	workloads := make([]Workload, 0, len(paths))
	for _, path := range paths {
		base := filepath.Base(path)
		ext := filepath.Ext(base)
		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		used[name] = true
		workloads = append(workloads, Workload{ElfPath: path, ArchiveName: name})
	}
	return workloads
}

// ID returns the experiment UUID.
func (e *ExperimentConfig) ID() string { return e.id }

// Core returns the core the experiment runs on.
func (e *ExperimentConfig) Core() string { return e.core }

// CoreVersion returns the resolved core version.
func (e *ExperimentConfig) CoreVersion() string { return e.coreVersion }

// OTP returns the password the result bundle is encrypted with.
func (e *ExperimentConfig) OTP() string { return e.otp }

// Workloads returns a copy of the workloads in package order.
func (e *ExperimentConfig) Workloads() []Workload {
	return append([]Workload(nil), e.workloads...)
}

// Reports returns a copy of the requested reports.
func (e *ExperimentConfig) Reports() []ReportSpec {
	return append([]ReportSpec(nil), e.reports...)
}

// Entries returns the package entries of the workloads.
func (e *ExperimentConfig) Entries() []bundle.Entry {
	entries := make([]bundle.Entry, len(e.workloads))
	for i, w := range e.workloads {
		entries[i] = bundle.Entry{Path: w.ElfPath, ArchiveName: w.ArchiveName}
	}
	return entries
}

// MarshalJSON encodes the config as stored in config.json.
func (e *ExperimentConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(experimentJSON{
		ID:          e.id,
		Core:        e.core,
		CoreVersion: e.coreVersion,
		Workloads:   e.workloads,
		Reports:     e.reports,
		OTP:         e.otp,
	})
}
