package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatYML  = "yml"
)

// RenderStatus renders the session status in the specified format
func RenderStatus(w io.Writer, view StatusView, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, view)
	case formatYAML, formatYML:
		return renderYAML(w, view)
	default:
		return renderStatusTable(w, view)
	}
}

func renderStatusTable(w io.Writer, view StatusView) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	status := "Not authenticated"
	if view.Authenticated {
		status = "✓ Authenticated"
	}

	t.AppendRow(table.Row{"Status", status})
	if view.Authenticated {
		t.AppendRow(table.Row{"User", fmt.Sprintf("%s (#%d)", view.Username, view.UserID)})
		t.AppendRow(table.Row{"Role", view.Role})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Server", view.APIBase})
	t.AppendRow(table.Row{"Store", view.Store})
	t.AppendRow(table.Row{"Access token", view.Access})
	t.AppendRow(table.Row{"Refresh token", view.Refresh})

	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

// renderMetrics prints every collected counter sample.
func renderMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Labels", "Value"})

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels = append(labels, pair.GetName()+"="+pair.GetValue())
			}
			sort.Strings(labels)

			t.AppendRow(table.Row{family.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue()})
		}
	}

	if t.Length() == 0 {
		fmt.Fprintln(w, "No metrics recorded")
		return nil
	}

	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func renderJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
