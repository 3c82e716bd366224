// Package workflow executes named multi-step automation flows. A workflow is
// an ordered list of steps: single prompts, prompt batches, and guarded
// sub-workflows. Conditions are gjson lookups over the execution state, never
// evaluated code.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/optisuite/optisuite/internal/batch"
	"github.com/optisuite/optisuite/internal/claude"
)

// Step kinds understood by the engine.
const (
	StepPrompt    = "prompt"
	StepBatch     = "batch"
	StepCondition = "condition"
)

// maxDepth bounds sub-workflow nesting to keep cyclic definitions from
// recursing forever.
const maxDepth = 8

// ErrUnknownWorkflow is returned when executing a name that was never registered.
var ErrUnknownWorkflow = errors.New("workflow: unknown workflow")

// Step is a single unit of work inside a workflow.
type Step struct {
	// Type selects the step kind: prompt, batch or condition.
	Type string `yaml:"type" json:"type"`

	// Content is the prompt template for prompt steps. Placeholders of the
	// form {key} are substituted from the execution context.
	Content string `yaml:"content,omitempty" json:"content,omitempty"`

	// System is an optional system prompt for prompt and batch steps.
	System string `yaml:"system,omitempty" json:"system,omitempty"`

	// Prompts lists the batch step inputs.
	Prompts []string `yaml:"prompts,omitempty" json:"prompts,omitempty"`

	// Condition guards a sub-workflow. See Evaluate for the syntax.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Workflow names the sub-workflow to run when the condition holds.
	Workflow string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// Result is the outcome of one executed step. Batch steps produce one entry
// per prompt; failed batch items are empty strings.
type Result struct {
	Step  int      `json:"step"`
	Type  string   `json:"type"`
	Texts []string `json:"texts"`
}

// Messenger is the slice of the Claude client the engine needs.
type Messenger interface {
	Messages(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error)
}

// Engine stores named workflows and executes them.
type Engine struct {
	messenger  Messenger
	maxWorkers int

	mu        sync.RWMutex
	workflows map[string][]Step
}

// NewEngine creates an engine backed by the given messenger. maxWorkers caps
// batch step concurrency.
func NewEngine(messenger Messenger, maxWorkers int) *Engine {
	return &Engine{
		messenger:  messenger,
		maxWorkers: maxWorkers,
		workflows:  make(map[string][]Step),
	}
}

// Register stores a workflow under a name, replacing any previous definition.
func (e *Engine) Register(name string, steps []Step) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("workflow: name is empty")
	}
	for i, step := range steps {
		switch step.Type {
		case StepPrompt:
			if step.Content == "" {
				return fmt.Errorf("workflow %q: step %d: prompt step has no content", name, i)
			}
		case StepBatch:
			if len(step.Prompts) == 0 {
				return fmt.Errorf("workflow %q: step %d: batch step has no prompts", name, i)
			}
		case StepCondition:
			if step.Condition == "" || step.Workflow == "" {
				return fmt.Errorf("workflow %q: step %d: condition step needs condition and workflow", name, i)
			}
		default:
			return fmt.Errorf("workflow %q: step %d: unknown step type %q", name, i, step.Type)
		}
	}
	e.mu.Lock()
	e.workflows[name] = steps
	e.mu.Unlock()
	return nil
}

// Names returns the registered workflow names, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.workflows))
	for name := range e.workflows {
		names = append(names, name)
	}
	e.mu.RUnlock()
	sort.Strings(names)
	return names
}

// LoadFile registers every workflow defined in a YAML file of the form:
//
//	workflows:
//	  daily-content:
//	    - type: prompt
//	      content: "Write a blog title about {topic}"
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("workflow: read %s failed: %w", path, err)
	}
	var doc struct {
		Workflows map[string][]Step `yaml:"workflows"`
	}
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("workflow: parse %s failed: %w", path, err)
	}
	for name, steps := range doc.Workflows {
		if err = e.Register(name, steps); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the named workflow with the given context values and returns
// the per-step results. The first failing step aborts the run.
func (e *Engine) Execute(ctx context.Context, name string, values map[string]any) ([]Result, error) {
	return e.execute(ctx, name, values, 0)
}

func (e *Engine) execute(ctx context.Context, name string, values map[string]any, depth int) ([]Result, error) {
	if depth >= maxDepth {
		return nil, fmt.Errorf("workflow %q: nesting deeper than %d levels", name, maxDepth)
	}

	e.mu.RLock()
	steps, ok := e.workflows[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}

	log.WithField("workflow", name).Infof("executing workflow with %d steps", len(steps))

	var results []Result
	for i, step := range steps {
		switch step.Type {
		case StepPrompt:
			resp, err := e.messenger.Messages(ctx, claude.MessageRequest{
				Prompt: substitute(step.Content, values),
				System: step.System,
			})
			if err != nil {
				return results, fmt.Errorf("workflow %q: step %d: %w", name, i, err)
			}
			results = append(results, Result{Step: i, Type: StepPrompt, Texts: []string{resp.Text}})

		case StepBatch:
			prompts := make([]string, len(step.Prompts))
			for j, p := range step.Prompts {
				prompts[j] = substitute(p, values)
			}
			items := batch.Process(ctx, e.messenger, prompts, batch.Options{
				System:     step.System,
				MaxWorkers: e.maxWorkers,
			})
			texts := make([]string, len(items))
			for j, item := range items {
				if item.Response != nil {
					texts[j] = item.Response.Text
				}
			}
			results = append(results, Result{Step: i, Type: StepBatch, Texts: texts})

		case StepCondition:
			hold, err := Evaluate(step.Condition, values, results)
			if err != nil {
				return results, fmt.Errorf("workflow %q: step %d: %w", name, i, err)
			}
			if !hold {
				log.WithFields(log.Fields{"workflow": name, "step": i}).Debug("condition not met, skipping sub-workflow")
				continue
			}
			sub, err := e.execute(ctx, step.Workflow, values, depth+1)
			results = append(results, sub...)
			if err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// substitute replaces {key} placeholders with context values.
func substitute(template string, values map[string]any) string {
	if len(values) == 0 {
		return template
	}
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return out
}

// Evaluate checks a condition against the execution state. The state is a
// JSON document {"context": ..., "results": [...step texts...]} and the
// condition is either a bare gjson path (truthy check) or
// "<path> <op> <literal>" with ops ==, !=, >, >=, <, <= and contains.
func Evaluate(condition string, values map[string]any, results []Result) (bool, error) {
	state := map[string]any{
		"context": values,
		"results": flattenTexts(results),
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("workflow: encode state failed: %w", err)
	}

	path, op, literal := splitCondition(condition)
	value := gjson.GetBytes(doc, path)

	if op == "" {
		return truthy(value), nil
	}

	switch op {
	case "==":
		return compareEqual(value, literal), nil
	case "!=":
		return !compareEqual(value, literal), nil
	case "contains":
		return strings.Contains(value.String(), strings.Trim(literal, `"'`)), nil
	case ">", ">=", "<", "<=":
		rhs, errParse := strconv.ParseFloat(literal, 64)
		if errParse != nil {
			return false, fmt.Errorf("workflow: condition %q: non-numeric comparison operand", condition)
		}
		lhs := value.Float()
		switch op {
		case ">":
			return lhs > rhs, nil
		case ">=":
			return lhs >= rhs, nil
		case "<":
			return lhs < rhs, nil
		default:
			return lhs <= rhs, nil
		}
	default:
		return false, fmt.Errorf("workflow: condition %q: unknown operator %q", condition, op)
	}
}

// flattenTexts collects all step texts in execution order.
func flattenTexts(results []Result) []string {
	var texts []string
	for _, r := range results {
		texts = append(texts, r.Texts...)
	}
	return texts
}

// splitCondition breaks "path op literal" apart; op is empty for bare paths.
func splitCondition(condition string) (path, op, literal string) {
	fields := strings.Fields(strings.TrimSpace(condition))
	if len(fields) >= 3 {
		switch fields[1] {
		case "==", "!=", ">", ">=", "<", "<=", "contains":
			return fields[0], fields[1], strings.Join(fields[2:], " ")
		}
	}
	return strings.TrimSpace(condition), "", ""
}

func compareEqual(value gjson.Result, literal string) bool {
	trimmed := strings.Trim(literal, `"'`)
	if value.Type == gjson.Number {
		if rhs, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return value.Float() == rhs
		}
	}
	if value.Type == gjson.True || value.Type == gjson.False {
		if rhs, err := strconv.ParseBool(trimmed); err == nil {
			return value.Bool() == rhs
		}
	}
	return value.String() == trimmed
}

func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return value.Float() != 0
	case gjson.String:
		return value.String() != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}
