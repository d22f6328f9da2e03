package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite provides a context and a scratch directory to suites
// that touch the file system.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "datalab-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the scratch directory path
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// CacheDir returns a fresh, empty cache directory for the current test.
func (s *IntegrationTestSuite) CacheDir() string {
	dir, err := os.MkdirTemp(s.tempDir, "cache-*")
	require.NoError(s.T(), err)
	return dir
}

// CreateTempFile creates a file with content in the scratch directory
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	err := os.WriteFile(path, content, 0o644)
	require.NoError(s.T(), err)
	return path
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// CreateTestData writes a JSONL file of n records with "id" and "text"
// fields, where record i holds i+1 words.
func CreateTestData(t *testing.T, dir string, n int) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("test_data_%d.jsonl", n))
	var sb strings.Builder
	for i := 0; i < n; i++ {
		words := make([]string, i+1)
		for j := range words {
			words[j] = fmt.Sprintf("w%d", j)
		}
		fmt.Fprintf(&sb, "{\"id\":%d,\"text\":%q}\n", i, strings.Join(words, " "))
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}
