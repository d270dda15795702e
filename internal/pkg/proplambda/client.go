package proplambda

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	log "github.com/sirupsen/logrus"
)

// MaxLambdaRetries is the number of times an invocation that reports a
// function error is retried.
const MaxLambdaRetries = 3

// LambdaClient wraps the AWS Lambda API
type LambdaClient struct {
	Client lambdaiface.LambdaAPI

	// Packager produces the zipped deployment package. Defaults to
	// cross-compiling BuildPackage.
	Packager func() ([]byte, error)

	// BuildPackage is the Go package compiled into the deployment package.
	// An import path resolves from any directory inside its module.
	BuildPackage string
}

// FunctionConfig holds the deployment settings of a worker function
type FunctionConfig struct {
	Name       string
	RoleARN    string
	Timeout    int64
	MemorySize int64
}

// NewLambdaClient initializes a new LambdaClient
func NewLambdaClient() *LambdaClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &LambdaClient{
		Client: lambda.New(sess),
	}
}

func functionNeedsUpdate(functionCode []byte, cfg *lambda.FunctionConfiguration) bool {
	codeHash := sha256.New()
	codeHash.Write(functionCode)
	codeHashDigest := base64.StdEncoding.EncodeToString(codeHash.Sum(nil))
	return codeHashDigest != aws.StringValue(cfg.CodeSha256)
}

func configNeedsUpdate(function *FunctionConfig, cfg *lambda.FunctionConfiguration) bool {
	return aws.StringValue(cfg.Role) != function.RoleARN ||
		aws.Int64Value(cfg.Timeout) != function.Timeout ||
		aws.Int64Value(cfg.MemorySize) != function.MemorySize
}

// DeployFunction creates the function described by function, or updates its
// code and configuration when they differ from the deployed ones.
func (l *LambdaClient) DeployFunction(function *FunctionConfig) error {
	packager := l.Packager
	if packager == nil {
		packager = func() ([]byte, error) {
			return buildPackage(l.BuildPackage)
		}
	}
	functionCode, err := packager()
	if err != nil {
		return fmt.Errorf("building deployment package: %w", err)
	}

	exists, err := l.getFunction(function.Name)
	if exists == nil || err != nil {
		log.Debugf("Creating Lambda function '%s'", function.Name)
		return l.createFunction(function, functionCode)
	}

	if functionNeedsUpdate(functionCode, exists.Configuration) {
		log.Debugf("Updating Lambda function code for '%s'", function.Name)
		if err := l.updateFunction(function.Name, functionCode); err != nil {
			return err
		}
	} else {
		log.Debugf("Function '%s' code is already up-to-date", function.Name)
	}

	if configNeedsUpdate(function, exists.Configuration) {
		log.Debugf("Updating Lambda function configuration for '%s'", function.Name)
		return l.updateConfiguration(function)
	}
	return nil
}

// DeleteFunction removes a deployed function
func (l *LambdaClient) DeleteFunction(functionName string) error {
	deleteInput := &lambda.DeleteFunctionInput{
		FunctionName: aws.String(functionName),
	}

	_, err := l.Client.DeleteFunction(deleteInput)
	return err
}

func buildArgs(outputPath, pkg string) []string {
	if pkg == "" {
		pkg = "."
	}
	return []string{
		"build",
		"-o", outputPath,
		"-ldflags", "-s -w",
		pkg,
	}
}

func crossCompile(binName, pkg string) (string, error) {
	tmpDir, err := ioutil.TempDir("", "")
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(tmpDir, binName)
	cmd := exec.Command("go", buildArgs(outputPath, pkg)...)

	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=amd64")

	combinedOut, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s\n%s", err, combinedOut)
	}

	return outputPath, nil
}

func buildPackage(pkg string) ([]byte, error) {
	log.Debugf("Compiling %s for Lambda", pkg)
	binFile, err := crossCompile("lambda_artifact", pkg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(filepath.Dir(binFile))

	binReader, err := os.Open(binFile)
	if err != nil {
		return nil, err
	}
	defer binReader.Close()

	zipBuf := new(bytes.Buffer)
	archive := zip.NewWriter(zipBuf)
	header := &zip.FileHeader{
		Name:           "main",
		ExternalAttrs:  (0777 << 16), // File permissions
		CreatorVersion: (3 << 8),     // Magic number indicating a Unix creator
	}

	log.Debug("Adding binary to zip archive")
	writer, err := archive.CreateHeader(header)
	if err != nil {
		return nil, err
	}

	if _, err = io.Copy(writer, binReader); err != nil {
		return nil, err
	}

	if err := archive.Close(); err != nil {
		return nil, err
	}

	return zipBuf.Bytes(), nil
}

func (l *LambdaClient) updateFunction(functionName string, code []byte) error {
	updateArgs := &lambda.UpdateFunctionCodeInput{
		ZipFile:      code,
		FunctionName: aws.String(functionName),
	}

	_, err := l.Client.UpdateFunctionCode(updateArgs)
	return err
}

func (l *LambdaClient) updateConfiguration(function *FunctionConfig) error {
	updateArgs := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(function.Name),
		Role:         aws.String(function.RoleARN),
		Timeout:      aws.Int64(function.Timeout),
		MemorySize:   aws.Int64(function.MemorySize),
	}

	_, err := l.Client.UpdateFunctionConfiguration(updateArgs)
	return err
}

func (l *LambdaClient) createFunction(function *FunctionConfig, code []byte) error {
	funcCode := &lambda.FunctionCode{
		ZipFile: code,
	}

	createArgs := &lambda.CreateFunctionInput{
		Code:         funcCode,
		FunctionName: aws.String(function.Name),
		Handler:      aws.String("main"),
		Runtime:      aws.String(lambda.RuntimeGo1X),
		Role:         aws.String(function.RoleARN),
		Timeout:      aws.Int64(function.Timeout),
		MemorySize:   aws.Int64(function.MemorySize),
	}

	_, err := l.Client.CreateFunction(createArgs)
	return err
}

func (l *LambdaClient) getFunction(functionName string) (*lambda.GetFunctionOutput, error) {
	getInput := &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	}

	return l.Client.GetFunction(getInput)
}

// Invoke synchronously invokes functionName with payload and returns the
// function's response. Invocations that report a function error are retried
// up to MaxLambdaRetries times.
func (l *LambdaClient) Invoke(ctx context.Context, functionName string, payload []byte) ([]byte, error) {
	invokeInput := &lambda.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      payload,
	}

	var lastErr error
	for try := 0; try <= MaxLambdaRetries; try++ {
		output, err := l.Client.InvokeWithContext(ctx, invokeInput)
		if err != nil {
			return nil, err
		}
		if output.FunctionError == nil {
			return output.Payload, nil
		}

		lastErr = fmt.Errorf("function error (%s): %s", aws.StringValue(output.FunctionError), output.Payload)
		log.Warnf("Invocation of '%s' failed (attempt %d): %s", functionName, try+1, lastErr)
	}
	return nil, lastErr
}
