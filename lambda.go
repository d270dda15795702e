package propstat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/propstat/propstat/internal/pkg/propfs"
	"github.com/propstat/propstat/internal/pkg/propiam"
	"github.com/propstat/propstat/internal/pkg/proplambda"
)

const (
	stripeCacheSize = 64
	workerRoleName  = "PropstatExecutionRole"

	// workerPackage is the program deployed as the worker function. It
	// serves ranks when it detects that it runs inside Lambda.
	workerPackage = "github.com/propstat/propstat/cmd/distributed"
)

// stripeCache holds partials computed by a warm Lambda container, so a
// retried invocation of the same task does not rescan the input. Entries
// are keyed by task, which includes the run ID; a later run over the same
// input always rescans.
var stripeCache, _ = lru.New(stripeCacheSize)

// task is the payload sent to a remote worker.
type task struct {
	RunID          string
	Input          string
	Rank           int
	Size           int
	SizeColumn     int
	PriceColumn    int
	FileSystemType propfs.FileSystemType
}

// runningInLambda infers if the program is running in AWS lambda via inspection of the environment
func runningInLambda() bool {
	expectedEnvVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

func handleRequest(ctx context.Context, t task) (partial, error) {
	if cached, ok := stripeCache.Get(t); ok {
		log.Debugf("Serving rank %d of %s from cache", t.Rank, t.Input)
		return cached.(partial), nil
	}

	fs, err := propfs.InitFilesystem(t.FileSystemType)
	if err != nil {
		return partial{}, err
	}
	job := &Job{
		RunID:      t.RunID,
		Input:      t.Input,
		Extractor:  NewExtractor(t.SizeColumn, t.PriceColumn),
		fileSystem: fs,
	}
	p, err := job.runStripe(t.Rank, t.Size)
	if err != nil {
		return partial{}, err
	}

	stripeCache.Add(t, p)
	return p, nil
}

type lambdaExecutor struct {
	*proplambda.LambdaClient
	*propiam.IAMClient
	functionName string
}

func newLambdaExecutor(functionName string) *lambdaExecutor {
	lambdaClient := proplambda.NewLambdaClient()
	lambdaClient.BuildPackage = workerPackage
	return &lambdaExecutor{
		lambdaClient,
		propiam.NewIAMClient(),
		functionName,
	}
}

func (l *lambdaExecutor) RunStripe(ctx context.Context, job *Job, rank, size int) (partial, error) {
	stripeTask := task{
		RunID:          job.RunID,
		Input:          job.Input,
		Rank:           rank,
		Size:           size,
		SizeColumn:     job.Extractor.SizeColumn,
		PriceColumn:    job.Extractor.PriceColumn,
		FileSystemType: propfs.InferFilesystemType(job.Input),
	}
	payload, err := json.Marshal(stripeTask)
	if err != nil {
		return partial{}, err
	}

	output, err := l.Invoke(ctx, l.functionName, payload)
	if err != nil {
		return partial{}, fmt.Errorf("rank %d: %w", rank, err)
	}

	var p partial
	if err := json.Unmarshal(output, &p); err != nil {
		return partial{}, fmt.Errorf("rank %d: decoding worker response: %w", rank, err)
	}
	if p.Rank != rank {
		return partial{}, fmt.Errorf("rank %d: worker answered for rank %d", rank, p.Rank)
	}
	return p, nil
}

// Deploy creates or updates the worker function, provisioning its execution
// role first when the role is managed.
func (l *lambdaExecutor) Deploy(c *config) error {
	roleARN := c.LambdaRoleARN
	if c.LambdaManageRole {
		var err error
		roleARN, err = l.DeployPermissions(workerRoleName)
		if err != nil {
			return fmt.Errorf("deploying worker role: %w", err)
		}
	}

	function := &proplambda.FunctionConfig{
		Name:       l.functionName,
		RoleARN:    roleARN,
		Timeout:    c.LambdaTimeout,
		MemorySize: c.LambdaMemory,
	}
	return l.DeployFunction(function)
}
