package services

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "xray-backend/internal/errors"
)

// maxStateErrorLen bounds the stderr echoed back by status
const maxStateErrorLen = 300

// ServiceState is the textual active-state of one OS service
type ServiceState struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// SystemdService restarts and queries services through systemctl
type SystemdService struct {
	logger *logrus.Logger
}

// NewSystemdService creates a new service manager client
func NewSystemdService(logger *logrus.Logger) *SystemdService {
	return &SystemdService{
		logger: logger,
	}
}

// Restart restarts the named unit
func (s *SystemdService) Restart(ctx context.Context, name string) error {
	s.logger.Infof("Restarting service %s", name)

	cmd := exec.CommandContext(ctx, "systemctl", "restart", name)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.New(truncate(msg, maxStateErrorLen))
		}
		return &apperrors.OSFailureError{Operation: "systemctl restart " + name, Err: err}
	}
	return nil
}

// State reports the active-state of the named unit; it never fails
func (s *SystemdService) State(ctx context.Context, name string) ServiceState {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", name)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// is-active exits non-zero for every state but "active"
	runErr := cmd.Run()

	state := strings.TrimSpace(stdout.String())
	result := ServiceState{Name: name, Active: state == "active", State: state}
	if result.State == "" {
		result.State = "unknown"
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		result.Error = truncate(msg, maxStateErrorLen)
	} else if runErr != nil && state == "" {
		result.Error = truncate(runErr.Error(), maxStateErrorLen)
	}
	return result
}

// JournalService reads recent lines from the system journal
type JournalService struct {
	logger *logrus.Logger
}

// NewJournalService creates a new journal reader
func NewJournalService(logger *logrus.Logger) *JournalService {
	return &JournalService{
		logger: logger,
	}
}

// Tail returns up to n most recent non-empty lines of unit, oldest first
func (j *JournalService) Tail(ctx context.Context, unit string, n int) ([]string, error) {
	cmd := exec.CommandContext(ctx, "journalctl", "-u", unit, "--no-pager", "--output=short-iso", "-n", strconv.Itoa(n))
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &apperrors.OSFailureError{Operation: "journalctl", Err: errors.New("journalctl not found")}
		}
		return nil, &apperrors.OSFailureError{Operation: "journalctl", Err: err}
	}

	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
