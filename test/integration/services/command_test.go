package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/linkmeAman/universal-middleware/test/integration"
)

type CommandServiceSuite struct {
	integration.IntegrationSuite
}

func TestCommandService(t *testing.T) {
	integration.RunIntegrationTest(t, new(CommandServiceSuite))
}

// TestCommandProcessing submits a NOOP domain command and waits for the
// worker to drain it to DONE.
func (s *CommandServiceSuite) TestCommandProcessing() {
	resp, err := http.Post(
		fmt.Sprintf("%s/domain-commands/noop", s.CommandServiceURL),
		"application/json",
		bytes.NewBufferString(`{}`),
	)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&created))
	s.Require().NotEmpty(created.ID)

	s.waitForStatus(created.ID, "DONE")
}

// TestCommandRetryAfterFail submits a FAIL command, waits for it to land
// in FAILED, then retries it and confirms it moves back to PENDING.
func (s *CommandServiceSuite) TestCommandRetryAfterFail() {
	resp, err := http.Post(
		fmt.Sprintf("%s/domain-commands/fail", s.CommandServiceURL),
		"application/json",
		bytes.NewBufferString(`{}`),
	)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&created))

	s.waitForStatus(created.ID, "FAILED")

	retryResp, err := http.Post(
		fmt.Sprintf("%s/domain-commands/%s/retry", s.CommandServiceURL, created.ID),
		"application/json",
		nil,
	)
	s.Require().NoError(err)
	defer retryResp.Body.Close()
	s.Require().Equal(http.StatusOK, retryResp.StatusCode)

	var retried struct {
		Status string `json:"status"`
	}
	s.Require().NoError(json.NewDecoder(retryResp.Body).Decode(&retried))
	s.Require().Equal("PENDING", retried.Status)
}

func (s *CommandServiceSuite) waitForStatus(commandID, want string) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/domain-commands/%s", s.CommandServiceURL, commandID))
		if err == nil {
			var got struct {
				Status string `json:"status"`
			}
			if decErr := json.NewDecoder(resp.Body).Decode(&got); decErr == nil && got.Status == want {
				resp.Body.Close()
				return
			}
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.T().Fatalf("command %s did not reach status %s within timeout", commandID, want)
}
