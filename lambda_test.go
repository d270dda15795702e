package propstat

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/stretchr/testify/assert"

	"github.com/propstat/propstat/internal/pkg/propfs"
	"github.com/propstat/propstat/internal/pkg/propiam"
	"github.com/propstat/propstat/internal/pkg/proplambda"
)

func TestRunningInLambda(t *testing.T) {
	res := runningInLambda()
	assert.False(t, res)

	envVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, env := range envVars {
		os.Setenv(env, "value")
		defer os.Unsetenv(env)
	}

	res = runningInLambda()
	assert.True(t, res)
}

func TestHandleRequest(t *testing.T) {
	path := writeInput(t, exampleInput)
	testTask := task{
		RunID:          "run-1",
		Input:          path,
		Rank:           1,
		Size:           2,
		SizeColumn:     0,
		PriceColumn:    1,
		FileSystemType: propfs.Local,
	}

	p, err := handleRequest(context.Background(), testTask)
	assert.Nil(t, err)
	assert.Equal(t, 1, p.Rank)
	assert.Equal(t, Extrema{MaxSize: observed(10), MinPrice: observed(50)}, p.Extrema)

	// A retried task within the same run is answered from the cache
	assert.Nil(t, ioutil.WriteFile(path, []byte("999,1\n999,1\n"), 0644))
	cached, err := handleRequest(context.Background(), testTask)
	assert.Nil(t, err)
	assert.Equal(t, p, cached)

	// A later run over the same path rescans the input
	testTask.RunID = "run-2"
	rescanned, err := handleRequest(context.Background(), testTask)
	assert.Nil(t, err)
	assert.Equal(t, Extrema{MaxSize: observed(999), MinPrice: observed(1)}, rescanned.Extrema)

	assert.Nil(t, os.Remove(path))
	testTask.RunID = "run-3"
	_, err = handleRequest(context.Background(), testTask)
	assert.NotNil(t, err)
}

// mockLambdaClient serves invocations by running the Lambda handler in-process.
type mockLambdaClient struct {
	lambdaiface.LambdaAPI

	mut      sync.Mutex
	payloads [][]byte
}

func (m *mockLambdaClient) InvokeWithContext(ctx aws.Context, input *lambda.InvokeInput, _ ...request.Option) (*lambda.InvokeOutput, error) {
	m.mut.Lock()
	m.payloads = append(m.payloads, input.Payload)
	m.mut.Unlock()

	var t task
	if err := json.Unmarshal(input.Payload, &t); err != nil {
		return nil, err
	}
	p, err := handleRequest(ctx, t)
	if err != nil {
		return &lambda.InvokeOutput{
			FunctionError: aws.String("Unhandled"),
			Payload:       []byte(err.Error()),
		}, nil
	}

	payload, err := json.Marshal(p)
	return &lambda.InvokeOutput{Payload: payload}, err
}

func TestNewLambdaExecutorBuildsWorker(t *testing.T) {
	executor := newLambdaExecutor("FunctionName")
	assert.Equal(t, workerPackage, executor.BuildPackage)
	assert.Equal(t, "FunctionName", executor.functionName)
}

func TestRunLambdaStripe(t *testing.T) {
	path := writeInput(t, exampleInput)
	mock := &mockLambdaClient{}
	executor := &lambdaExecutor{
		&proplambda.LambdaClient{Client: mock},
		nil,
		"FunctionName",
	}

	job, err := NewJob(path, NewExtractor(0, 1))
	assert.Nil(t, err)
	p, err := executor.RunStripe(context.Background(), job, 0, 2)
	assert.Nil(t, err)
	assert.Equal(t, Extrema{MaxSize: observed(5), MinPrice: observed(100)}, p.Extrema)

	var taskPayload task
	err = json.Unmarshal(mock.payloads[0], &taskPayload)
	assert.Nil(t, err)

	assert.Equal(t, job.RunID, taskPayload.RunID)
	assert.Equal(t, path, taskPayload.Input)
	assert.Equal(t, 0, taskPayload.Rank)
	assert.Equal(t, 2, taskPayload.Size)
	assert.Equal(t, propfs.Local, taskPayload.FileSystemType)
}

func TestDriverOverLambda(t *testing.T) {
	path := writeInput(t, exampleInput)
	mock := &mockLambdaClient{}

	driver := newTestDriver(Distributed, WithInput(path), WithWorkers(3))
	driver.executor = &lambdaExecutor{
		&proplambda.LambdaClient{Client: mock},
		nil,
		"FunctionName",
	}

	result, err := driver.Run(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, observed(10), result.MaxSize)
	assert.Equal(t, observed(50), result.MinPrice)
	assert.Len(t, mock.payloads, 3)
}

func TestDriverOverLambdaRewrittenInput(t *testing.T) {
	path := writeInput(t, exampleInput)
	mock := &mockLambdaClient{}

	driver := newTestDriver(Distributed, WithInput(path), WithWorkers(2))
	driver.executor = &lambdaExecutor{
		&proplambda.LambdaClient{Client: mock},
		nil,
		"FunctionName",
	}

	result, err := driver.Run(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, observed(10), result.MaxSize)

	assert.Nil(t, ioutil.WriteFile(path, []byte("size,price\n999,1\n7,8\n"), 0644))

	result, err = driver.Run(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, observed(999), result.MaxSize)
	assert.Equal(t, observed(1), result.MinPrice)
}

type wrongRankLambdaClient struct {
	lambdaiface.LambdaAPI
}

func (wrongRankLambdaClient) InvokeWithContext(aws.Context, *lambda.InvokeInput, ...request.Option) (*lambda.InvokeOutput, error) {
	payload, _ := json.Marshal(partial{Rank: 5})
	return &lambda.InvokeOutput{Payload: payload}, nil
}

func TestRunLambdaStripeWrongRank(t *testing.T) {
	executor := &lambdaExecutor{
		&proplambda.LambdaClient{Client: wrongRankLambdaClient{}},
		nil,
		"FunctionName",
	}

	job, err := NewJob("houses.csv", NewExtractor(0, 1))
	assert.Nil(t, err)

	_, err = executor.RunStripe(context.Background(), job, 1, 2)
	assert.NotNil(t, err)
}

type deployLambdaMock struct {
	lambdaiface.LambdaAPI
	capturedCreateFunctionInput *lambda.CreateFunctionInput
}

func (d *deployLambdaMock) GetFunction(*lambda.GetFunctionInput) (*lambda.GetFunctionOutput, error) {
	return nil, errors.New("function not found")
}

func (d *deployLambdaMock) CreateFunction(input *lambda.CreateFunctionInput) (*lambda.FunctionConfiguration, error) {
	d.capturedCreateFunctionInput = input
	return nil, nil
}

type deployIAMMock struct {
	iamiface.IAMAPI
}

func (deployIAMMock) GetRole(*iam.GetRoleInput) (*iam.GetRoleOutput, error) {
	return &iam.GetRoleOutput{Role: &iam.Role{Arn: aws.String("roleARN")}}, nil
}

func (deployIAMMock) GetRolePolicy(*iam.GetRolePolicyInput) (*iam.GetRolePolicyOutput, error) {
	return &iam.GetRolePolicyOutput{}, nil
}

func TestDeployFunction(t *testing.T) {
	lambdaMock := &deployLambdaMock{}
	executor := &lambdaExecutor{
		&proplambda.LambdaClient{
			Client: lambdaMock,
			Packager: func() ([]byte, error) {
				return []byte("code"), nil
			},
		},
		&propiam.IAMClient{IAMAPI: deployIAMMock{}},
		"FunctionName",
	}

	err := executor.Deploy(&config{
		LambdaManageRole: true,
		LambdaTimeout:    180,
		LambdaMemory:     1500,
	})
	assert.Nil(t, err)

	input := lambdaMock.capturedCreateFunctionInput
	assert.Equal(t, "FunctionName", *input.FunctionName)
	assert.Equal(t, "roleARN", *input.Role)
	assert.Equal(t, int64(180), *input.Timeout)
	assert.Equal(t, int64(1500), *input.MemorySize)
}

func TestDeployFunctionUnmanagedRole(t *testing.T) {
	lambdaMock := &deployLambdaMock{}
	executor := &lambdaExecutor{
		&proplambda.LambdaClient{
			Client: lambdaMock,
			Packager: func() ([]byte, error) {
				return []byte("code"), nil
			},
		},
		nil,
		"FunctionName",
	}

	err := executor.Deploy(&config{LambdaRoleARN: "configuredARN"})
	assert.Nil(t, err)
	assert.Equal(t, "configuredARN", *lambdaMock.capturedCreateFunctionInput.Role)
}
