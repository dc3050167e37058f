package client

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/hako/durafmt"
	"github.com/natefinch/atomic"

	"github.com/coreperf-io/coreperf/client/bundle"
	"github.com/coreperf-io/coreperf/client/encryption"
	"github.com/coreperf-io/coreperf/client/errs"
	"github.com/coreperf-io/coreperf/client/logger"
	"github.com/coreperf-io/coreperf/client/transport"
)

const (
	maxPollAttempts = 10
	pollInterval    = 2 * time.Second

	packageName = "workload.exp"
	bundleExt   = ".tar.gz"
)

// Transport performs the remote calls of a Submission.
// *transport.Client implements it.
type Transport interface {
	CreateSignedURLs(ctx context.Context, req transport.SignedURLRequest) (*transport.SignedURLs, error)
	Upload(ctx context.Context, url, path string) error
	Status(ctx context.Context, url string) (*transport.Status, error)
	Download(ctx context.Context, url, dest string) (int64, error)
	Stats() *transport.Stats
}

// Option configures a Submission.
type Option func(*Submission)

// WithLogger sets the logger used by the submission and its ciphers.
func WithLogger(l logger.Logger) Option {
	return func(s *Submission) { s.logger = l }
}

// WithCoreResolver replaces the resolver built from the cores config section.
func WithCoreResolver(r CoreResolver) Option {
	return func(s *Submission) { s.resolver = r }
}

// WithWorkloadValidator replaces the ELF validator.
func WithWorkloadValidator(v WorkloadValidator) Option {
	return func(s *Submission) { s.validator = v }
}

// WithTransport replaces the HTTP transport built from the config.
func WithTransport(t Transport) Option {
	return func(s *Submission) { s.transport = t }
}

// WithSleep replaces the function used to wait between status polls.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Submission) { s.sleep = sleep }
}

// Result describes a finished run.
type Result struct {
	ExperimentID string
	// Dir is the experiment directory.
	Dir string
	// BundlePath is the downloaded result bundle. It is empty once the
	// bundle has been unpacked.
	BundlePath string
	// ResultsDir is the unpacked result tree. It is empty if the bundle was
	// not unpacked.
	ResultsDir string
	ResultType string
	Summary    map[string]interface{}
	Elapsed    time.Duration
	Stats      *transport.Stats
}

// Submission runs one experiment: it packages the workloads, encrypts and
// uploads the package, polls for completion and retrieves the results. A
// Submission is not safe for concurrent use and runs at most once.
type Submission struct {
	config    *Config
	logger    logger.Logger
	resolver  CoreResolver
	validator WorkloadValidator
	transport Transport
	hybrid    *encryption.HybridEncryptor
	password  *encryption.PasswordCipher
	sleep     func(time.Duration)
	now       func() time.Time
	workloads []string
	core      string
	state     State
}

// NewSubmission creates a Submission for the given config.
func NewSubmission(config *Config, opts ...Option) (*Submission, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Submission{
		config:    config,
		resolver:  staticCoreResolver(config.Cores),
		validator: elfValidator{},
		sleep:     time.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewLogger(config.LogLevel)
		if config.LogSilent {
			s.logger.Silent(true)
		}
	}
	if s.transport == nil {
		endpoint, err := config.ResolveEndpoint()
		if err != nil {
			return nil, err
		}
		t, err := transport.New(transport.Config{
			Endpoint:  endpoint,
			APIKey:    config.APIKey,
			Channel:   config.Channel,
			Timeout:   config.Timeout,
			UserAgent: "coreperf/" + Version,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		s.transport = t
	}
	s.hybrid = encryption.NewHybridEncryptor(s.logger)
	s.password = encryption.NewPasswordCipher(s.logger)
	return s, nil
}

// State returns the current state of the submission.
func (s *Submission) State() State {
	return s.state
}

// AddWorkload adds an executable to the experiment.
func (s *Submission) AddWorkload(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrapf(errs.Validation, err, "workload %s does not exist", path)
	}
	if info.IsDir() {
		return errs.New(errs.Validation, "workload %s is a directory", path)
	}
	if err := s.validator.Validate(path); err != nil {
		return errs.Wrapf(errs.Validation, err, "invalid workload %s", path)
	}
	s.workloads = append(s.workloads, path)
	return nil
}

// SetCore sets the core the experiment runs on.
func (s *Submission) SetCore(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.New(errs.Validation, "core name must not be empty")
	}
	s.core = name
	return nil
}

// Run executes the experiment. The results are stored under name, which
// defaults to the experiment ID. If unpack is false the run ends once the
// encrypted result bundle is downloaded. Every failure is an Experiment
// error; the kind of the underlying failure is still reported by errs.Is.
// Files written before a failure are left in place.
func (s *Submission) Run(ctx context.Context, name string, unpack bool) (*Result, error) {
	if s.state != StateCreated {
		return nil, errs.New(errs.Experiment, "submission already run (state %s)", s.state)
	}
	result, err := s.run(ctx, name, unpack)
	if err != nil {
		s.state = StateFailed
		return nil, errs.Wrap(errs.Experiment, err, "experiment failed")
	}
	return result, nil
}

func (s *Submission) run(ctx context.Context, name string, unpack bool) (*Result, error) {
	start := s.now()

	if len(s.workloads) == 0 {
		return nil, errs.New(errs.Experiment, "no workload added")
	}
	if s.core == "" {
		return nil, errs.New(errs.Experiment, "no core set")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, errs.New(errs.Experiment, "invalid result name %q", name)
	}

	version, err := s.resolver.Resolve(s.core)
	if err != nil {
		return nil, err
	}
	exp, err := newExperimentConfig(start, s.core, version, s.workloads, s.config.ReportTypes)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = exp.ID()
	}
	dir := filepath.Join(s.config.ExperimentsDir, exp.ID())
	s.logger.Prefix("[" + exp.ID() + "] ")
	defer s.logger.Prefix("")
	s.logger.Infof("Starting experiment %s on %s (%s) with %s",
		exp.ID(), exp.Core(), exp.CoreVersion(), english.Plural(len(s.workloads), "workload", ""))

	pkg, err := s.pack(exp, dir)
	if err != nil {
		return nil, err
	}
	s.state = StatePackaged

	statusURL, err := s.upload(ctx, exp, pkg)
	if err != nil {
		return nil, err
	}

	s.state = StatePolling
	loc, err := s.poll(ctx, statusURL)
	if err != nil {
		return nil, err
	}
	s.state = StateReady

	bundlePath := filepath.Join(dir, name+bundleExt)
	n, err := s.transport.Download(ctx, loc.URL, bundlePath)
	if err != nil {
		return nil, err
	}
	s.state = StateDownloaded
	s.logger.Infof("Downloaded %s of results to %s", humanize.IBytes(uint64(n)), bundlePath)

	result := &Result{
		ExperimentID: exp.ID(),
		Dir:          dir,
		BundlePath:   bundlePath,
		ResultType:   loc.Type,
		Stats:        s.transport.Stats(),
	}
	if unpack {
		if err := s.unpack(exp, pkg, result, name); err != nil {
			return nil, err
		}
	}
	result.Elapsed = s.now().Sub(start)
	s.logStats(result.Elapsed)
	return result, nil
}

// pack writes config.json and the workload package into dir.
func (s *Submission) pack(exp *ExperimentConfig, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.Wrap(errs.Experiment, err, "failed to create experiment directory")
	}
	configJSON, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.Experiment, err, "failed to encode experiment config")
	}
	if err := atomic.WriteFile(filepath.Join(dir, bundle.ConfigName), bytes.NewReader(configJSON)); err != nil {
		return "", errs.Wrap(errs.Experiment, err, "failed to write experiment config")
	}
	pkg := filepath.Join(dir, packageName)
	if err := bundle.Build(pkg, configJSON, exp.Entries()); err != nil {
		return "", err
	}
	if info, err := os.Stat(pkg); err == nil {
		s.logger.Debugf("Packaged %s into %s (%s)",
			english.Plural(len(exp.workloads), "workload", ""), pkg, humanize.IBytes(uint64(info.Size())))
	}
	return pkg, nil
}

// upload encrypts the package to the service key and uploads it. It returns
// the status URL of the experiment.
func (s *Submission) upload(ctx context.Context, exp *ExperimentConfig, pkg string) (string, error) {
	names := make([]string, 0, len(exp.workloads))
	for _, w := range exp.workloads {
		names = append(names, w.ArchiveName)
	}
	urls, err := s.transport.CreateSignedURLs(ctx, transport.SignedURLRequest{
		ExperimentID: exp.ID(),
		Workload:     strings.Join(names, ","),
		Core:         exp.Core(),
	})
	if err != nil {
		return "", err
	}
	if err := s.hybrid.EncryptInPlace([]byte(urls.PublicKey), pkg); err != nil {
		return "", err
	}
	s.state = StateEncrypted

	if err := s.transport.Upload(ctx, urls.PackageURL, pkg); err != nil {
		return "", err
	}
	s.state = StateUploaded
	s.logger.Infof("Uploaded experiment %s", exp.ID())
	return urls.StatusURL, nil
}

// poll queries the status URL until the results are ready. It makes at most
// maxPollAttempts requests and sleeps pollInterval between two of them.
func (s *Submission) poll(ctx context.Context, statusURL string) (*transport.ResultLocation, error) {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		if attempt > 1 {
			s.sleep(pollInterval)
		}
		status, err := s.transport.Status(ctx, statusURL)
		if err != nil {
			return nil, err
		}
		switch status.Code {
		case transport.StatusPending:
			s.logger.Infof("Experiment still running (attempt %d/%d)", attempt, maxPollAttempts)
		case transport.StatusReady:
			if status.Metadata.Result.URL == "" {
				return nil, errs.New(errs.Experiment, "experiment finished without a result URL")
			}
			return &status.Metadata.Result, nil
		case transport.StatusNotFound:
			return nil, errs.New(errs.Experiment, "experiment not found")
		case transport.StatusServerError:
			return nil, errs.New(errs.Experiment, "experiment failed on the server")
		default:
			return nil, errs.New(errs.Experiment, "unexpected experiment status %d", status.Code)
		}
	}
	return nil, errs.New(errs.Experiment, "timed out waiting for results after %s",
		english.Plural(maxPollAttempts, "attempt", ""))
}

// unpack decrypts and extracts the result bundle and removes the files it
// supersedes.
func (s *Submission) unpack(exp *ExperimentConfig, pkg string, result *Result, name string) error {
	if err := s.password.DecryptWithPassword(result.BundlePath, []byte(exp.OTP())); err != nil {
		return err
	}
	s.state = StateDecrypted

	resultsDir := filepath.Join(result.Dir, name)
	files, err := bundle.Extract(result.BundlePath, resultsDir)
	if err != nil {
		return err
	}
	s.logger.Debugf("Extracted %s into %s", english.Plural(files, "file", ""), resultsDir)

	removed, err := cleanROIReports(resultsDir, s.logger)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Warnf("Removed %s with no recorded cycles or instructions",
			english.Plural(removed, "empty ROI report", ""))
	}

	summary, err := loadSummary(resultsDir)
	if err != nil {
		return err
	}

	for _, path := range []string{pkg, result.BundlePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errs.Wrapf(errs.Experiment, err, "failed to remove %s", path)
		}
	}
	s.state = StateUnpacked

	result.ResultsDir = resultsDir
	result.BundlePath = ""
	result.Summary = summary
	return nil
}

func (s *Submission) logStats(elapsed time.Duration) {
	stats := s.transport.Stats()
	s.logger.Infof("Experiment finished in %s", durafmt.Parse(elapsed.Round(time.Millisecond)))
	s.logger.Debugf("%s (%d failed), %s sent, %s received, latency p50 %s, p99 %s, max %s",
		english.Plural(int(stats.Requests()), "request", ""), stats.Errors(),
		humanize.IBytes(uint64(stats.BytesSent())), humanize.IBytes(uint64(stats.BytesReceived())),
		stats.LatencyPercentile(50), stats.LatencyPercentile(99), stats.LatencyMax())
}
