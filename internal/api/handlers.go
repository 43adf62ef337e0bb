package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

const redacted = "REDACTED"

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}

// handleConfig returns the running configuration with secrets blanked. The
// document uses the YAML key names so it reads like the config file.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := redactedConfig(s.cfg)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrIDInternal, "rendering config", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func redactedConfig(cfg *config.Config) (map[string]any, error) {
	c := *cfg
	if c.MQTT.Auth.Password != "" {
		c.MQTT.Auth.Password = redacted
	}
	if c.InfluxDB.Token != "" {
		c.InfluxDB.Token = redacted
	}
	if c.Security.JWT.Secret != "" {
		c.Security.JWT.Secret = redacted
	}
	if c.Plugins.Cluster.Token != "" {
		c.Plugins.Cluster.Token = redacted
	}

	raw, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return doc, nil
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.commands.Plugins(r.Context())
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plugins)
}

// registerRequest accepts either an explicit mode or a configured-style
// address such as "unix:/run/plugins/emulator.sock".
type registerRequest struct {
	Mode    plugin.Mode `json:"mode"`
	Address string      `json:"address"`
}

func (s *Server) handleRegisterPlugin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidArguments(w, r, "invalid JSON body", err)
		return
	}

	var (
		addr plugin.Address
		err  error
	)
	if req.Mode == "" {
		addr, err = plugin.ParseAddress(req.Address)
	} else {
		addr = plugin.Address{Mode: req.Mode, Address: req.Address}
		err = addr.Validate()
	}
	if err != nil {
		writeInvalidArguments(w, r, "invalid plugin address", err)
		return
	}

	info, err := s.commands.RegisterPlugin(r.Context(), addr)
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handlePluginHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.commands.PluginHealth(r.Context())
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeInvalidArguments(w, r, "force must be a boolean", err)
			return
		}
		force = b
	}

	tree, err := s.commands.Scan(r.Context(), chi.URLParam(r, "rack"), chi.URLParam(r, "board"), force)
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	result, err := s.commands.Read(r.Context(),
		chi.URLParam(r, "rack"), chi.URLParam(r, "board"), chi.URLParam(r, "device"))
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req command.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidArguments(w, r, "invalid JSON body", err)
		return
	}

	result, err := s.commands.Write(r.Context(),
		chi.URLParam(r, "rack"), chi.URLParam(r, "board"), chi.URLParam(r, "device"), req)
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransactions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.commands.Transactions())
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	result, err := s.commands.CheckTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRackInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.commands.RackInfo(r.Context(), chi.URLParam(r, "rack"))
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBoardInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.commands.BoardInfo(r.Context(), chi.URLParam(r, "rack"), chi.URLParam(r, "board"))
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.commands.DeviceInfo(r.Context(),
		chi.URLParam(r, "rack"), chi.URLParam(r, "board"), chi.URLParam(r, "device"))
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAudit lists write audit entries, newest first.
//
// Query parameters: rack, board, device, plugin, since (RFC3339), limit,
// offset.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Rack:   q.Get("rack"),
		Board:  q.Get("board"),
		Device: q.Get("device"),
		Plugin: q.Get("plugin"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeInvalidArguments(w, r, "since must be an RFC3339 timestamp", err)
			return
		}
		filter.Since = t
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeInvalidArguments(w, r, "limit must be a non-negative integer", err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeInvalidArguments(w, r, "offset must be a non-negative integer", err)
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrIDInternal, "listing audit entries", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

var errNegative = errors.New("api: negative value")

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

func (s *Server) handleProcesses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.processes.Stats())
}
