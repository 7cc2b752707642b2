// Package matcher decides which ingestion workflows can consume a selection
// of files and how the files map onto the workflow's inputs.
package matcher

import (
	"strings"

	"github.com/grovetools/chordsync/pkg/models"
)

// Result is the outcome of matching one workflow against a selection.
type Result struct {
	WorkflowID string
	Supported  bool
	// Assignment maps file input IDs to the claimed paths, in selection order.
	// Only set when Supported.
	Assignment map[string][]string
	// Reason explains an unsupported result.
	Reason string

	inputs []models.WorkflowInput
}

// Match assigns the selection to the file inputs of wf. Inputs are visited in
// declaration order: a scalar input claims the first compatible unclaimed
// file, an array input claims every compatible unclaimed file. The workflow
// is supported only if every file input found at least one file and no file
// is left unclaimed.
func Match(selection []string, wf models.Workflow) Result {
	res := Result{WorkflowID: wf.ID}
	unclaimed := append([]string(nil), selection...)
	assignment := make(map[string][]string)

	for _, in := range wf.Inputs {
		if !in.IsFile() {
			continue
		}

		var compatible []int
		for i, path := range unclaimed {
			if hasExtension(path, in.Extensions) {
				compatible = append(compatible, i)
				if !in.IsArray() {
					break
				}
			}
		}
		if len(compatible) == 0 {
			res.Reason = "no compatible file for input " + in.ID
			return res
		}

		claimed := make(map[int]struct{}, len(compatible))
		for _, i := range compatible {
			assignment[in.ID] = append(assignment[in.ID], unclaimed[i])
			claimed[i] = struct{}{}
		}
		rest := unclaimed[:0:0]
		for i, path := range unclaimed {
			if _, ok := claimed[i]; !ok {
				rest = append(rest, path)
			}
		}
		unclaimed = rest
	}

	if len(unclaimed) > 0 {
		res.Reason = "unclaimed files: " + strings.Join(unclaimed, ", ")
		return res
	}

	res.Supported = true
	res.Assignment = assignment
	res.inputs = wf.Inputs
	return res
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// SupportedWorkflows returns the results of the workflows that can consume
// selection, in the order given. An empty selection supports nothing.
func SupportedWorkflows(selection []string, workflows []models.Workflow) []Result {
	if len(selection) == 0 {
		return nil
	}
	var out []Result
	for _, wf := range workflows {
		if r := Match(selection, wf); r.Supported {
			out = append(out, r)
		}
	}
	return out
}

// Inputs converts the assignment into ingestion form values: a string for a
// scalar input, a string slice for an array input.
func (r Result) Inputs() map[string]interface{} {
	if !r.Supported {
		return nil
	}
	values := make(map[string]interface{}, len(r.Assignment))
	for _, in := range r.inputs {
		paths, ok := r.Assignment[in.ID]
		if !ok {
			continue
		}
		if in.IsArray() {
			values[in.ID] = append([]string(nil), paths...)
		} else {
			values[in.ID] = paths[0]
		}
	}
	return values
}
