package support

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code is %d, expected %d\nOutput: %s", testCtx.LastExitCode, code, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMentionEither accepts either of two phrasings.
func (testCtx *TestContext) theErrorShouldMentionEither(first, second string) error {
	if testCtx.theErrorShouldMention(first) == nil {
		return nil
	}
	return testCtx.theErrorShouldMention(second)
}

func (testCtx *TestContext) theErrorShouldSuggestAvailableCommands() error {
	out := testCtx.LastOutput
	if strings.Contains(out, "Did you mean") || strings.Contains(out, "Available Commands") ||
		strings.Contains(out, "--help") {
		return nil
	}
	return fmt.Errorf("error does not point at available commands\nOutput: %s", out)
}

// nothingShouldBeWrittenToStdout guards failed runs against partial output.
func (testCtx *TestContext) nothingShouldBeWrittenToStdout() error {
	if strings.TrimSpace(testCtx.LastStdout) != "" {
		return fmt.Errorf("stdout is not empty: %s", testCtx.LastStdout)
	}
	return nil
}

// RegisterErrorSteps registers failure handling steps.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^the error should mention "([^"]*)" or "([^"]*)"$`, testCtx.theErrorShouldMentionEither)
	sc.Step(`^the error should suggest available commands$`, testCtx.theErrorShouldSuggestAvailableCommands)
	sc.Step(`^nothing should be written to stdout$`, testCtx.nothingShouldBeWrittenToStdout)
}
