package propstat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	humanize "github.com/dustin/go-humanize"
	"github.com/propstat/propstat/internal/pkg/propfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// Strategy selects how records are partitioned across workers.
type Strategy int

const (
	// Distributed stripes rows across shared-nothing ranks by row index and
	// combines their partials with a collective reduction.
	Distributed Strategy = iota
	// SharedMemory loads the input once and splits it into contiguous
	// ranges over goroutines that merge under a mutex.
	SharedMemory
)

func (s Strategy) String() string {
	switch s {
	case Distributed:
		return "distributed"
	case SharedMemory:
		return "shared-memory"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Driver controls the execution of an aggregation
type Driver struct {
	strategy Strategy
	config   *config
	executor executor
}

// config configures a Driver's execution
type config struct {
	Input            string
	SizeColumn       int
	PriceColumn      int
	Workers          int
	Threads          int
	MaxConcurrency   int
	Progress         bool
	FunctionName     string
	LambdaMemory     int64
	LambdaTimeout    int64
	LambdaManageRole bool
	LambdaRoleARN    string
}

func newConfig() *config {
	loadConfig() // Load viper config from settings file(s) and environment
	return &config{
		Input:            viper.GetString("input_file"),
		SizeColumn:       viper.GetInt("size_column"),
		PriceColumn:      viper.GetInt("price_column"),
		Workers:          viper.GetInt("workers"),
		Threads:          viper.GetInt("threads"),
		MaxConcurrency:   viper.GetInt("max_concurrency"),
		Progress:         viper.GetBool("progress"),
		FunctionName:     viper.GetString("function_name"),
		LambdaMemory:     viper.GetInt64("lambda_memory"),
		LambdaTimeout:    viper.GetInt64("lambda_timeout"),
		LambdaManageRole: viper.GetBool("lambda_manage_role"),
		LambdaRoleARN:    viper.GetString("lambda_role_arn"),
	}
}

// Option allows configuration of a Driver
type Option func(*config)

// NewDriver creates a new Driver for the given strategy and optional configuration
func NewDriver(strategy Strategy, options ...Option) *Driver {
	setLogLevel()

	d := &Driver{
		strategy: strategy,
		executor: localExecutor{},
	}

	c := newConfig()
	for _, f := range options {
		f(c)
	}
	d.config = c
	d.normalizeConfig()
	log.Debugf("Loaded config: %#v", c)

	return d
}

func setLogLevel() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func (d *Driver) normalizeConfig() {
	c := d.config
	if c.Workers < 1 {
		log.Warnf("Configured worker count %d is invalid, using 1", c.Workers)
		c.Workers = 1
	}
	if c.Threads < 1 {
		log.Warnf("Configured thread count %d is invalid, using 1", c.Threads)
		c.Threads = 1
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
}

// WithInput sets the input file of the Driver
func WithInput(input string) Option {
	return func(c *config) {
		c.Input = input
	}
}

// WithColumns sets the 0-based size and price columns
func WithColumns(sizeColumn, priceColumn int) Option {
	return func(c *config) {
		c.SizeColumn = sizeColumn
		c.PriceColumn = priceColumn
	}
}

// WithWorkers sets the number of ranks used by the distributed strategy
func WithWorkers(n int) Option {
	return func(c *config) {
		c.Workers = n
	}
}

// WithThreads sets the number of goroutines used by the shared-memory strategy
func WithThreads(n int) Option {
	return func(c *config) {
		c.Threads = n
	}
}

// WithMaxConcurrency bounds the number of ranks running at once
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithProgress enables or disables the progress bar
func WithProgress(enabled bool) Option {
	return func(c *config) {
		c.Progress = enabled
	}
}

// Result is the global outcome of one run.
type Result struct {
	MaxSize  Bound
	MinPrice Bound
	Elapsed  time.Duration // slowest worker
	Workers  int
	Rows     int64 // records folded across all workers
}

func (d *Driver) extractor() Extractor {
	ex := NewExtractor(d.config.SizeColumn, d.config.PriceColumn)
	if d.strategy == SharedMemory {
		ex.TrimQuotes = true
		ex.Parse = ParseLeadingInt
	}
	return ex
}

func (d *Driver) newProgressBar(total int, prefix string) *pb.ProgressBar {
	bar := pb.New(total).Prefix(prefix)
	if d.config.Progress {
		bar.Output = os.Stderr
	} else {
		bar.NotPrint = true
	}
	return bar.Start()
}

// runDistributed runs every rank concurrently. Each rank scans the whole
// input through its own reader and contributes its partial to the collective
// reduction; the result is taken from the root.
func (d *Driver) runDistributed(ctx context.Context, job *Job) (reduction, error) {
	size := d.config.Workers
	coll := newCollective(size, rootRank)
	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))
	bar := d.newProgressBar(size, "Ranks")

	var result reduction
	group, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		rank := rank
		group.Go(func() error {
			p, err := d.runRank(ctx, sem, job, rank, size)
			bar.Increment()
			if err != nil {
				log.Errorf("Error when running rank %d: %s", rank, err)
				return err
			}

			r, ok, err := coll.Reduce(ctx, p)
			if err != nil {
				return err
			}
			if ok {
				result = r
			}
			return nil
		})
	}
	err := group.Wait()
	bar.Finish()

	return result, err
}

func (d *Driver) runRank(ctx context.Context, sem *semaphore.Weighted, job *Job, rank, size int) (partial, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return partial{}, err
	}
	defer sem.Release(1)

	return d.executor.RunStripe(ctx, job, rank, size)
}

func (d *Driver) runSharedMemory(ctx context.Context, job *Job) (reduction, error) {
	loaded, err := job.loadRecords()
	if err != nil {
		return reduction{}, err
	}
	if !loaded.paired() {
		return reduction{}, ErrNoValidData
	}

	return runShared(ctx, loaded.sets, d.config.Threads)
}

func (d *Driver) workers() int {
	if d.strategy == SharedMemory {
		return d.config.Threads
	}
	return d.config.Workers
}

// Run executes the aggregation and returns the global result. If no
// aggregate could be observed, the result is returned with ErrNoValidData.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if d.config.Input == "" {
		return Result{}, ErrNoInput
	}

	job, err := NewJob(d.config.Input, d.extractor())
	if err != nil {
		return Result{}, err
	}
	if fInfo, err := job.fileSystem.Stat(job.Input); err == nil {
		log.Debugf("Running %s strategy over %s (%s) with %d workers",
			d.strategy, job.Input, humanize.Bytes(uint64(fInfo.Size)), d.workers())
	}

	var r reduction
	switch d.strategy {
	case SharedMemory:
		r, err = d.runSharedMemory(ctx, job)
	default:
		r, err = d.runDistributed(ctx, job)
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{
		MaxSize:  r.Extrema.MaxSize,
		MinPrice: r.Extrema.MinPrice,
		Elapsed:  r.Elapsed,
		Workers:  d.workers(),
		Rows:     r.Rows,
	}
	if r.Extrema.Empty() {
		return result, ErrNoValidData
	}
	if !result.MaxSize.Present || !result.MinPrice.Present {
		log.Warn("Only one of the aggregates could be computed from the input")
	}
	return result, nil
}

// Main runs the Driver as a command line program and exits the process.
// Inside AWS Lambda, Main serves distributed ranks instead.
func (d *Driver) Main() {
	if runningInLambda() {
		lambda.Start(handleRequest)
		return
	}

	os.Exit(d.main(os.Args[0], os.Args[1:], os.Stdout))
}

func (d *Driver) main(program string, args []string, stdout io.Writer) int {
	flags := pflag.NewFlagSet(program, pflag.ContinueOnError)
	flags.BoolP("verbose", "v", viper.GetBool("verbose"), "Output debug logs")
	memprofile := flags.String("memprofile", "", "write memory profile to `file`")

	var useLambda bool
	switch d.strategy {
	case Distributed:
		flags.IntVarP(&d.config.Workers, "workers", "n", d.config.Workers, "Number of ranks to stripe rows across")
		flags.BoolVar(&useLambda, "lambda", false, "Run ranks as AWS Lambda invocations")
	case SharedMemory:
		flags.IntVarP(&d.config.Threads, "threads", "t", d.config.Threads, "Number of goroutines to fold records on")
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	setLogLevel()
	d.normalizeConfig()

	switch d.strategy {
	case Distributed:
		if flags.NArg() < 1 {
			fmt.Fprintf(stdout, "Usage: %s [flags] <datafile>\n", program)
			return 1
		}
		d.config.Input = flags.Arg(0)
	case SharedMemory:
		if cwd, err := os.Getwd(); err == nil {
			fmt.Fprintf(stdout, "Current working directory: %s\n", cwd)
		}
	}

	if useLambda {
		if propfs.InferFilesystemType(d.config.Input) == propfs.Local {
			log.Warnf("Input %s is local; Lambda workers can only read s3:// inputs", d.config.Input)
		}
		lambdaExec := newLambdaExecutor(d.config.FunctionName)
		if err := lambdaExec.Deploy(d.config); err != nil {
			log.Errorf("Unable to deploy worker function: %s", err)
			return 1
		}
		d.executor = lambdaExec
	}

	result, err := d.Run(context.Background())
	if errors.Is(err, ErrNoValidData) {
		fmt.Fprintln(stdout, "No valid data found.")
		return 1
	} else if err != nil {
		log.Error(err)
		return 1
	}

	if err := WriteReport(stdout, result); err != nil {
		log.Error(err)
		return 1
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		f.Close()
	}
	return 0
}
