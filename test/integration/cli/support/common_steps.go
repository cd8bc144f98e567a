package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// iRunCommand executes a CLI command with variable substitution.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	// Logs go to stderr, so stdout stays machine readable.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}
	return nil
}

// substituteCommandVariables replaces {tmp} and {name} placeholders, where
// name is a raster created by an earlier step.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)

	// Longest names first so {hill2} is not clobbered by {hill}.
	names := make([]string, 0, len(testCtx.Rasters))
	for name := range testCtx.Rasters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		command = strings.ReplaceAll(command, "{"+name+"}", testCtx.Rasters[name])
	}
	return command
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain checks stdout and stderr for a substring.
func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q\nOutput: %s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(testCtx.LastOutput, unexpected) {
		return fmt.Errorf("output unexpectedly contains %q\nOutput: %s", unexpected, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention does a case-insensitive search of the combined output.
func (testCtx *TestContext) theErrorShouldMention(expected string) error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded, expected an error mentioning %q", expected)
	}
	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(expected)) {
		return fmt.Errorf("error output does not mention %q\nOutput: %s", expected, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldBeValidJSON validates stdout as a JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var v any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &v); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return nil
}

// theJSONShouldContain checks that a dotted field path exists in stdout.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	_, err := jsonField(testCtx.LastStdout, field)
	return err
}

// theJSONFieldShouldEqual compares a numeric field with an expected value.
func (testCtx *TestContext) theJSONFieldShouldEqual(field string, expected int) error {
	v, err := jsonField(testCtx.LastStdout, field)
	if err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok {
		return fmt.Errorf("field %q is %T, not a number", field, v)
	}
	if int(n) != expected {
		return fmt.Errorf("field %q is %v, expected %d", field, n, expected)
	}
	return nil
}

// jsonField walks a dotted path like "files.0.error" through a JSON document.
func jsonField(doc, path string) (any, error) {
	var current any
	if err := json.Unmarshal([]byte(doc), &current); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("JSON does not contain field %q", path)
			}
			current = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("JSON array index %q out of range in %q", key, path)
			}
			current = node[i]
		default:
			return nil, fmt.Errorf("JSON field %q is not an object or array", path)
		}
	}
	return current, nil
}

// theStdoutShouldHaveLines counts non-empty stdout lines.
func (testCtx *TestContext) theStdoutShouldHaveLines(expected int) error {
	n := 0
	for line := range strings.SplitSeq(testCtx.LastStdout, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	if n != expected {
		return fmt.Errorf("stdout has %d lines, expected %d\nOutput: %s", n, expected, testCtx.LastStdout)
	}
	return nil
}

// theFileShouldExist verifies a file exists and remembers it for later steps.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.resolvePath(testCtx.substituteCommandVariables(filename))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	testCtx.LastFile = path
	return nil
}

func (testCtx *TestContext) theFileShouldNotExist(filename string) error {
	path := testCtx.resolvePath(testCtx.substituteCommandVariables(filename))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file %s exists but should not", path)
	}
	return nil
}

// theFileShouldContain checks the last file verified to exist.
func (testCtx *TestContext) theFileShouldContain(expected string) error {
	if testCtx.LastFile == "" {
		return errors.New("no file checked yet")
	}
	data, err := os.ReadFile(testCtx.LastFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", testCtx.LastFile, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain %q", testCtx.LastFile, expected)
	}
	return nil
}

// theImageShouldMeasure decodes an image file and checks its size.
func (testCtx *TestContext) theImageShouldMeasure(filename string, width, height int) error {
	path := testCtx.resolvePath(testCtx.substituteCommandVariables(filename))
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", path, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// theEnvironmentVariableIsSetTo adds an environment variable for later commands.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteCommandVariables(value))
	return nil
}

// RegisterCommonSteps registers command execution and output steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	// Command execution
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)

	// Output validation
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be (\d+)$`, testCtx.theJSONFieldShouldEqual)
	sc.Step(`^stdout should have (\d+) lines$`, testCtx.theStdoutShouldHaveLines)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	// File validation
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+) pixels$`, testCtx.theImageShouldMeasure)
}
