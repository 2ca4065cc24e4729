package backendserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"xray-backend/internal/config"
	"xray-backend/internal/constants"
	"xray-backend/internal/models"
	"xray-backend/internal/permissions"
)

var (
	errRequestTooLarge = errors.New("request too large")
	errEmptyRequest    = errors.New("empty request")
)

// Handler executes one decoded request
type Handler interface {
	Handle(ctx context.Context, req *models.Request) models.Response
}

// Server answers line-delimited JSON requests on a Unix socket.
// Connections are served one at a time, which serializes every action.
type Server struct {
	config   config.SocketConfig
	handler  Handler
	permCtrl *permissions.PermissionController
	listener net.Listener
	logger   *logrus.Logger
}

// NewServer creates a new request server
func NewServer(cfg config.SocketConfig, handler Handler, permCtrl *permissions.PermissionController, logger *logrus.Logger) *Server {
	return &Server{
		config:   cfg,
		handler:  handler,
		permCtrl: permCtrl,
		logger:   logger,
	}
}

// Listen binds the socket, replacing a stale socket file, and applies its permissions
func (s *Server) Listen() error {
	if err := os.Remove(s.config.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.config.Path, err)
	}

	ln, err := net.Listen("unix", s.config.Path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Path, err)
	}

	if err := s.permCtrl.ApplySocket(s.config.Path); err != nil {
		_ = ln.Close()
		return err
	}

	s.listener = ln
	s.logger.Infof("Listening on %s", s.config.Path)
	return nil
}

// Serve runs the accept loop until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.logger.Info("Stopping request server")
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Errorf("Accept failed: %v", err)
			continue
		}
		s.serveConn(ctx, conn)
	}
}

// Start listens and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// cleanup removes the socket file
func (s *Server) cleanup() {
	if err := os.Remove(s.config.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warnf("Failed to remove socket %s: %v", s.config.Path, err)
	}
}

// serveConn reads one request line, answers it and closes the connection
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	timeout := time.Duration(s.config.ReadTimeout) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultReadTimeout * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	resp := s.dispatch(ctx, conn)

	_ = conn.SetWriteDeadline(time.Now().Add(constants.DefaultWriteTimeout * time.Second))
	enc := json.NewEncoder(conn)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		s.logger.Warnf("Failed to write response: %v", err)
	}
}

// dispatch decodes the request on conn and hands it to the handler
func (s *Server) dispatch(ctx context.Context, conn net.Conn) models.Response {
	line, err := readLine(conn)
	if err != nil {
		s.logger.Warnf("Rejected request: %v", err)
		return models.Fail(err.Error())
	}

	var req models.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warnf("Rejected malformed request: %v", err)
		return models.Fail(fmt.Sprintf("invalid request: %v", err))
	}

	s.logger.Debugf("Received action %q for %q", req.Action, req.Username)
	return s.handler.Handle(ctx, &req)
}

// readLine reads up to the first newline, refusing more than MaxRequestBytes
func readLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(io.LimitReader(r, constants.MaxRequestBytes+1))
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	line = bytes.TrimRight(line, "\r\n")
	if len(line) > constants.MaxRequestBytes {
		return nil, errRequestTooLarge
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, errEmptyRequest
	}
	return line, nil
}
