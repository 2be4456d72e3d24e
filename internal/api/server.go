// Copyright 2025 go-mmagen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the compiler over HTTP.
//
//	POST /v1/compile  compile problem descriptions with a pipeline
//	GET  /v1/kinds    list the MMA intrinsic kinds
//	GET  /v1/devices  list hal drivers and their devices
package api

import (
	"io"
	"net/http"
	"runtime"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/gpu"
	"github.com/ajroetker/go-mmagen/hal"
	"github.com/ajroetker/go-mmagen/internal/logger"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/pipeline"
)

// ErrInvalidRequest marks errors caused by the request body.
var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }

func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(err error) error {
	return invalidRequestError{msg: err.Error()}
}

// Server holds the defaults shared by every request.
type Server struct {
	cfg      pipeline.Config
	registry *hal.Registry
	log      logger.Logger
}

// NewServer creates a server compiling with cfg unless a request overrides
// it. A nil registry means hal.DefaultRegistry.
func NewServer(cfg pipeline.Config, registry *hal.Registry, log logger.Logger) *Server {
	if registry == nil {
		registry = hal.DefaultRegistry()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, registry: registry, log: log}
}

// Register installs the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/compile", s.handleCompile)
	e.GET("/v1/kinds", s.handleKinds)
	e.GET("/v1/devices", s.handleDevices)
}

// CompileRequest is the body of POST /v1/compile.
type CompileRequest struct {
	Module   string             `json:"module,omitempty"`
	Problems []pipeline.Problem `json:"problems"`
	Format   string             `json:"format,omitempty"`
	Config   *pipeline.Config   `json:"config,omitempty"`
}

// CompileResponse is the answer to a successful compilation. Text is set
// for the text format, Functions for the json format.
type CompileResponse struct {
	RunID     string            `json:"run_id"`
	Text      string            `json:"text,omitempty"`
	Functions []ir.FunctionJSON `json:"functions,omitempty"`
	Report    *pipeline.Report  `json:"report"`
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorBody{Error: ErrorDetail{Type: errType, Message: msg}})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	data, err := io.ReadAll(r)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Wrap(err, "decoding request body")
	}
	return v, nil
}

func (s *Server) handleCompile(c *echo.Context) error {
	req, err := decodeJSON[CompileRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	m, cfg, err := s.prepare(req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	defer runner.Close()
	ctx := logger.WithContext(c.Request().Context(), s.log)
	report, err := runner.Run(ctx, m)
	if err != nil {
		s.log.Warn("compilation failed", "module", m.Name, "error", err.Error())
		return writeError(c, http.StatusUnprocessableEntity, "compile_error", err.Error())
	}

	resp := CompileResponse{RunID: report.RunID, Report: report}
	switch req.Format {
	case pipeline.FormatJSON:
		resp.Functions = lo.Map(m.Functions, func(fn *ir.Function, _ int) ir.FunctionJSON { return ir.Export(fn) })
	default:
		resp.Text = ir.NewPrinter().PrintModule(m)
	}
	return c.JSON(http.StatusOK, resp)
}

// prepare validates the request and builds its module.
func (s *Server) prepare(req CompileRequest) (*ir.Module, pipeline.Config, error) {
	if len(req.Problems) == 0 {
		return nil, pipeline.Config{}, newInvalidRequest(errors.New("problems must not be empty"))
	}
	if !lo.Contains([]string{"", pipeline.FormatText, pipeline.FormatJSON}, req.Format) {
		return nil, pipeline.Config{}, newInvalidRequest(errors.Errorf("unknown output format %q", req.Format))
	}
	cfg := s.cfg
	if req.Config != nil {
		cfg = *req.Config
		if len(cfg.Stages) == 0 {
			cfg.Stages = s.cfg.Stages
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, pipeline.Config{}, newInvalidRequest(err)
	}
	if limit := s.maxWorkers(); cfg.Workers == 0 || cfg.Workers > limit {
		cfg.Workers = limit
	}
	name := req.Module
	if name == "" {
		name = "api"
	}
	m, err := pipeline.BuildModule(name, req.Problems)
	if err != nil {
		return nil, pipeline.Config{}, newInvalidRequest(err)
	}
	return m, cfg, nil
}

// maxWorkers bounds the worker pool a single request may start: the
// server's configured count, or GOMAXPROCS when that is unset.
func (s *Server) maxWorkers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// KindInfo describes one MMA intrinsic kind.
type KindInfo struct {
	Name string   `json:"name"`
	MNK  [3]int64 `json:"mnk"`
	A    string   `json:"a"`
	B    string   `json:"b"`
	C    string   `json:"c"`
}

// DescribeKind summarizes k.
func DescribeKind(k gpu.MmaKind) KindInfo {
	m, n, kk := k.MNKShape()
	a, b, c := k.ABCVectorTypes()
	return KindInfo{Name: k.Name(), MNK: [3]int64{m, n, kk}, A: a.String(), B: b.String(), C: c.String()}
}

func (s *Server) handleKinds(c *echo.Context) error {
	return c.JSON(http.StatusOK, lo.Map(gpu.MmaKinds(), func(k gpu.MmaKind, _ int) KindInfo { return DescribeKind(k) }))
}

// DriverDevices lists the devices of one driver.
type DriverDevices struct {
	Driver  hal.DriverInfo   `json:"driver"`
	Devices []hal.DeviceInfo `json:"devices"`
}

// ListDevices creates every driver of r and collects its devices.
func ListDevices(r *hal.Registry) ([]DriverDevices, error) {
	var out []DriverDevices
	for _, info := range r.Enumerate() {
		d, err := r.Create(info.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "creating driver %s", info.Name)
		}
		out = append(out, DriverDevices{Driver: d.Info(), Devices: d.Devices()})
	}
	return out, nil
}

func (s *Server) handleDevices(c *echo.Context) error {
	devices, err := ListDevices(s.registry)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, devices)
}
