package permissions

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ErrNotRoot is returned when a privileged front end runs without root
var ErrNotRoot = errors.New("must run as root")

// AccessType represents how a caller reaches the backend
type AccessType int

const (
	// None represents no access
	None AccessType = iota
	// Socket represents access through the group-restricted request socket
	Socket
	// Direct represents in-process access by a root CLI
	Direct
)

// PermissionController manages who may submit requests. The socket's
// filesystem group and mode are the only caller authentication.
type PermissionController struct {
	group  string
	mode   os.FileMode
	logger *logrus.Logger
}

// NewController creates a new permission controller
func NewController(group string, mode os.FileMode, logger *logrus.Logger) *PermissionController {
	logger.Infof("Initialized permission controller (socket group %q, mode %04o)", group, mode)

	return &PermissionController{
		group:  group,
		mode:   mode,
		logger: logger,
	}
}

// GetAccessType determines the access type of the current process
func (p *PermissionController) GetAccessType(direct bool) AccessType {
	if !direct {
		return Socket
	}
	if IsRoot() {
		return Direct
	}
	return None
}

// RequireRoot fails unless the process runs with effective uid 0
func (p *PermissionController) RequireRoot() error {
	if !IsRoot() {
		return ErrNotRoot
	}
	return nil
}

// ApplySocket sets the socket mode and hands its group to the configured group.
// An unknown group is logged and the socket keeps the process group.
func (p *PermissionController) ApplySocket(path string) error {
	if p.group != "" {
		gid, err := p.lookupGroup()
		if err != nil {
			p.logger.Warnf("Socket group %q unavailable: %v", p.group, err)
		} else if err := os.Chown(path, -1, gid); err != nil {
			return fmt.Errorf("failed to chown socket %s: %w", path, err)
		}
	}

	if err := os.Chmod(path, p.mode); err != nil {
		return fmt.Errorf("failed to chmod socket %s: %w", path, err)
	}

	p.logger.Debugf("Applied socket permissions %04o to %s", p.mode, path)
	return nil
}

// lookupGroup resolves the configured group name to a gid
func (p *PermissionController) lookupGroup() (int, error) {
	g, err := user.LookupGroup(p.group)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}

// IsRoot reports whether the process runs with effective uid 0
func IsRoot() bool {
	return os.Geteuid() == 0
}
