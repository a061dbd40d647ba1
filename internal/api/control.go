package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
)

// sourceAPI tags preset batches started over HTTP.
const sourceAPI = "api"

// handleSetPowerState switches a device: ?ch=<channel>&on_off=0|1.
func (s *Server) handleSetPowerState(w http.ResponseWriter, r *http.Request) {
	cmd := command.FromQuery(r.URL.Query())
	ch, ok := cmd.Channel()
	if !ok {
		writeText(w, http.StatusBadRequest, "ch is required")
		return
	}
	on, ok := cmd.PowerState()
	if !ok {
		writeText(w, http.StatusBadRequest, "on_off is required")
		return
	}

	if err := s.pool.SetPowerState(r.Context(), ch, on); err != nil {
		s.logger.Warn("set power state failed", "channel", ch, "on", on, "error", err)
		writeDeviceError(w, err)
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// handleSetLightState sends a light command:
// ?ch=<channel>&brightness&color_temp&hue&saturation&transition_period&mode.
func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	cmd := command.FromQuery(r.URL.Query())
	ch, ok := cmd.Channel()
	if !ok {
		writeText(w, http.StatusBadRequest, "ch is required")
		return
	}

	if err := s.pool.SetLightState(r.Context(), ch, cmd); err != nil {
		s.logger.Warn("set light state failed", "channel", ch, "command", cmd.String(), "error", err)
		writeDeviceError(w, err)
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// handleApplyPresetToClass applies a preset to a device class:
// ?className&presetId&suspendPeriodicFilters&resumePeriodicFilters.
func (s *Server) handleApplyPresetToClass(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	className := q.Get("className")
	presetID := q.Get("presetId")
	if className == "" || presetID == "" {
		writeText(w, http.StatusBadRequest, "className and presetId are required")
		return
	}
	source := q.Get("source")
	if source == "" {
		source = sourceAPI
	}

	result, err := s.pool.ApplyPresetToClass(r.Context(), className, presetID, source,
		queryBool(q, "suspendPeriodicFilters"),
		queryBool(q, "resumePeriodicFilters"),
	)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	if len(result.Failures) > 0 {
		s.logger.Warn("preset partially applied",
			"batch_id", result.ID,
			"class", className,
			"preset", presetID,
			"failed", len(result.Failures),
			"total", result.Total,
		)
	}
	writeText(w, http.StatusOK, "ok")
}

// optionsTarget is the body of POST /applyOptions. Exactly one selector is
// used, in the order className, channel, group.
type optionsTarget struct {
	ClassName string          `json:"className,omitempty"`
	Channel   json.Number     `json:"channel,omitempty"`
	Group     string          `json:"group,omitempty"`
	Options   *filter.Options `json:"options,omitempty"`
}

func (t optionsTarget) resolve() (device.TargetType, string, bool) {
	switch {
	case t.ClassName != "":
		return device.TargetClass, t.ClassName, true
	case t.Channel != "":
		return device.TargetChannel, t.Channel.String(), true
	case t.Group != "":
		return device.TargetGroup, t.Group, true
	default:
		return "", "", false
	}
}

// handleApplyOptions merges filter options into the matching devices and
// echoes the request body. Options come from the query string; an
// "options" object in the body overrides them field by field.
func (s *Server) handleApplyOptions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	var target optionsTarget
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&target); err != nil {
		writeText(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tt, id, ok := target.resolve()
	if !ok {
		writeText(w, http.StatusBadRequest, "className, channel or group is required")
		return
	}

	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if target.Options != nil {
		opts = overlayOptions(opts, *target.Options)
	}

	n, err := s.pool.ApplyOptionsTo(tt, id, opts)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.logger.Info("filter options applied", "target", string(tt), "id", id, "devices", n)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(body)
}

// optionsFromQuery reads filter options from query parameters:
//
//	filter=naturalLight  applyPartially=0.5  transitionTime=60  offset=-15
//	url=https://...      day.color_temp=6000  night.hue=30
func optionsFromQuery(q url.Values) (filter.Options, error) {
	var opts filter.Options
	opts.Plugin = q.Get("filter")

	if raw := q.Get("applyPartially"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, fmt.Errorf("applyPartially: %q is not a number", raw)
		}
		opts.ApplyPartially = &v
	}
	for key, dst := range map[string]**solar.Pair{"transitionTime": &opts.TransitionTime, "offset": &opts.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, fmt.Errorf("%s: %q is not a number", key, raw)
		}
		p := solar.Uniform(v)
		*dst = &p
	}
	if q.Has("url") {
		u := q.Get("url")
		opts.URL = &u
	}

	for key, vs := range q {
		period, name, found := strings.Cut(key, ".")
		if !found || (period != "day" && period != "night") || len(vs) == 0 {
			continue
		}
		p, ok := command.Lookup(name)
		if !ok || !command.IsNumeric(p) {
			continue
		}
		v, err := strconv.ParseFloat(vs[0], 64)
		if err != nil {
			return opts, fmt.Errorf("%s: %q is not a number", key, vs[0])
		}
		if period == "day" {
			opts.Day = setParam(opts.Day, p, v)
		} else {
			opts.Night = setParam(opts.Night, p, v)
		}
	}
	return opts, nil
}

func setParam(m map[command.Param]float64, p command.Param, v float64) map[command.Param]float64 {
	if m == nil {
		m = make(map[command.Param]float64)
	}
	m[p] = v
	return m
}

// overlayOptions returns base with every field set in top replacing it.
func overlayOptions(base, top filter.Options) filter.Options {
	if top.Plugin != "" {
		base.Plugin = top.Plugin
	}
	if top.ApplyPartially != nil {
		base.ApplyPartially = top.ApplyPartially
	}
	if top.TransitionTime != nil {
		base.TransitionTime = top.TransitionTime
	}
	if top.Offset != nil {
		base.Offset = top.Offset
	}
	for p, v := range top.Day {
		base.Day = setParam(base.Day, p, v)
	}
	for p, v := range top.Night {
		base.Night = setParam(base.Night, p, v)
	}
	if top.Restrictions != nil {
		base.Restrictions = top.Restrictions
	}
	if top.URL != nil {
		base.URL = top.URL
	}
	return base
}

// queryBool accepts 1/true/yes/on, case-insensitive.
func queryBool(q url.Values, key string) bool {
	switch strings.ToLower(q.Get(key)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
