package main

import (
	"encoding/json"
	"strconv"

	"github.com/Brownie44l1/pico-http/internal/device"
	"github.com/Brownie44l1/pico-http/internal/router"
	"github.com/Brownie44l1/pico-http/internal/server"
)

// DefaultThreshold is echoed by /api/threshold when no value is given.
const DefaultThreshold = 0.5

const defaultHomepage = `<!DOCTYPE html><html><head><title>Motor Level</title></head>` +
	`<body><h1>Motor Level</h1><pre id="s">Waiting...</pre>` +
	`<script>setInterval(function(){fetch("/api/status").then(function(r){return r.json()})` +
	`.then(function(j){document.getElementById("s").textContent=JSON.stringify(j,null,2)})},1000)</script>` +
	`</body></html>`

// handlers serves device state. They run on the main loop, the same
// goroutine that updates the monitor.
type handlers struct {
	monitor *device.Monitor
	metrics *server.Metrics
}

type statusBody struct {
	Level      int           `json:"level"`
	Confidence float64       `json:"confidence"`
	Sample     device.Sample `json:"sample"`
}

type scoresBody struct {
	Level  int                    `json:"level"`
	Scores [device.Levels]float64 `json:"scores"`
}

func (h *handlers) register(r *router.Router) error {
	routes := []struct {
		pattern string
		handler router.HandlerFunc
	}{
		{"/api/status", h.status},
		{"/api/scores", h.scores},
		{"/api/metrics", h.serverMetrics},
		{"/api/threshold", h.threshold},
	}
	for _, rt := range routes {
		if err := r.Register(rt.pattern, rt.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) status(c *router.Context) string {
	st := h.monitor.Status()
	return writeJSON(c, statusBody{
		Level:      st.Level,
		Confidence: st.Confidence,
		Sample:     st.Sample,
	})
}

func (h *handlers) scores(c *router.Context) string {
	st := h.monitor.Status()
	return writeJSON(c, scoresBody{Level: st.Level, Scores: st.Scores})
}

func (h *handlers) serverMetrics(c *router.Context) string {
	return writeJSON(c, h.metrics.Snapshot())
}

func (h *handlers) threshold(c *router.Context) string {
	c.SetContentType(router.ContentTypePlain)
	return strconv.FormatFloat(c.FloatParam("value=", DefaultThreshold), 'g', -1, 64)
}

func writeJSON(c *router.Context, v any) string {
	c.SetContentType(router.ContentTypeJSON)
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
