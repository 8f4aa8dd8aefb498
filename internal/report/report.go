// Package report renders pipeline results.
package report

import (
	"fmt"
	"io"

	"github.com/raffis/matrun/internal/pipeline"
)

type Type string

const (
	TypeNone     Type = "none"
	TypeTable    Type = "table"
	TypeJSON     Type = "json"
	TypeMarkdown Type = "markdown"
	TypeTimeline Type = "timeline"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) Validate() error {
	switch t {
	case TypeNone, TypeTable, TypeJSON, TypeMarkdown, TypeTimeline:
		return nil
	default:
		return fmt.Errorf("invalid report type `%s`, one of none|table|json|markdown|timeline", t)
	}
}

// Render writes result in the format t.
func Render(t Type, w io.Writer, result pipeline.PipelineResult) error {
	switch t {
	case TypeNone:
		return nil
	case TypeTable:
		return Table(w, result)
	case TypeJSON:
		return JSON(w, result)
	case TypeMarkdown:
		return Markdown(w, result)
	case TypeTimeline:
		return Timeline(w, result, terminalWidth(w))
	default:
		return t.Validate()
	}
}
