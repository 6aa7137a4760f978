package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/stretchr/testify/suite"
)

// IntegrationSuite is the base suite for tests that exercise a running
// command-service over HTTP rather than calling Go packages directly.
type IntegrationSuite struct {
	suite.Suite
	Config *config.Config
	Log    *logger.Logger

	CommandServiceURL string
}

// SetupSuite loads config, a test logger, and waits for command-service
// to report healthy before any test in the suite runs.
func (s *IntegrationSuite) SetupSuite() {
	var err error

	s.Config, err = config.Load()
	s.Require().NoError(err, "failed to load config")

	s.Log, err = logger.New("test", "debug")
	s.Require().NoError(err, "failed to initialize logger")

	s.CommandServiceURL = "http://localhost:8082"

	s.waitForHealthy()
}

// waitForHealthy polls GET /health until it reports 200 or the deadline
// passes.
func (s *IntegrationSuite) waitForHealthy() {
	client := http.Client{Timeout: 5 * time.Second}
	deadline := time.Now().Add(30 * time.Second)

	for {
		resp, err := client.Get(fmt.Sprintf("%s/health", s.CommandServiceURL))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		if time.Now().After(deadline) {
			s.T().Fatalf("command-service not healthy after 30 seconds")
		}
		time.Sleep(time.Second)
	}
}

// RunIntegrationTest runs the given suite, skipping it in `go test -short`
// mode since it requires a live command-service, worker, and Postgres.
func RunIntegrationTest(t *testing.T, s suite.TestingSuite) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, s)
}
