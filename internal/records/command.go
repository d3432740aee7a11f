package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dharsanguruparan/efolder-express/internal/metrics"
)

// Subcommands understood by the records helper executable.
const (
	opListDocuments = "list-documents"
	opFetchDocument = "fetch-document"
	opDocumentTypes = "document-types"
)

// CommandConfig describes the helper executable.
type CommandConfig struct {
	Path        string
	Args        []string
	Dir         string
	Concurrency int
}

// CommandClient runs one helper process per call. At most Concurrency
// processes run at the same time.
type CommandClient struct {
	path string
	args []string
	dir  string
	sem  *semaphore.Weighted
}

// NewCommandClient validates cfg and returns a client.
func NewCommandClient(cfg CommandConfig) (*CommandClient, error) {
	if cfg.Path == "" {
		return nil, errors.New("records command path is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &CommandClient{
		path: cfg.Path,
		args: append([]string(nil), cfg.Args...),
		dir:  cfg.Dir,
		sem:  semaphore.NewWeighted(int64(cfg.Concurrency)),
	}, nil
}

func (c *CommandClient) ListDocuments(ctx context.Context, fileNumber string) ([]DocumentMeta, error) {
	out, err := c.run(ctx, opListDocuments, fileNumber)
	if err != nil {
		return nil, err
	}
	docs, err := parseManifest(out)
	if err != nil {
		return nil, &TransportError{Op: opListDocuments, Args: []string{fileNumber}, Stdout: out, Err: err}
	}
	return docs, nil
}

func (c *CommandClient) FetchDocumentContents(ctx context.Context, documentID string) ([]byte, error) {
	return c.run(ctx, opFetchDocument, documentID)
}

func (c *CommandClient) GetDocumentTypes(ctx context.Context) (map[int]string, error) {
	out, err := c.run(ctx, opDocumentTypes)
	if err != nil {
		return nil, err
	}
	types, err := parseDocumentTypes(out)
	if err != nil {
		return nil, &TransportError{Op: opDocumentTypes, Stdout: out, Err: err}
	}
	return types, nil
}

func (c *CommandClient) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Op: op, Args: args, ExitCode: -1, Err: err}
	}
	defer c.sem.Release(1)

	start := time.Now()
	argv := append(append(append([]string(nil), c.args...), op), args...)
	cmd := exec.CommandContext(ctx, c.path, argv...)
	cmd.Dir = c.dir
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ExternalCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalCalls.WithLabelValues(op, "error").Inc()
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &TransportError{
			Op:       op,
			Args:     args,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: exitCode,
			Err:      fmt.Errorf("run %s: %w", c.path, err),
		}
	}
	metrics.ExternalCalls.WithLabelValues(op, "ok").Inc()
	return stdout.Bytes(), nil
}
