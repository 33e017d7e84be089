package schema

import "strings"

type RoutineKind string

const (
	KindFunction  RoutineKind = "FUNCTION"
	KindProcedure RoutineKind = "PROCEDURE"
)

type ParamMode string

const (
	ModeIn       ParamMode = "IN"
	ModeOut      ParamMode = "OUT"
	ModeInOut    ParamMode = "INOUT"
	ModeVariadic ParamMode = "VARIADIC"
)

// ParseParamMode treats an empty mode as IN, which is what engines report
// for function arguments.
func ParseParamMode(s string) ParamMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OUT":
		return ModeOut
	case "INOUT":
		return ModeInOut
	case "VARIADIC":
		return ModeVariadic
	default:
		return ModeIn
	}
}

// Accepts reports whether the caller supplies a value for this mode.
func (m ParamMode) Accepts() bool {
	return m != ModeOut
}

type Parameter struct {
	Name     string
	Type     string
	Mode     ParamMode
	Position int
}

type Routine struct {
	Schema       string
	Name         string
	SpecificName string
	Kind         RoutineKind
	Parameters   []Parameter
	ReturnType   string
	Definition   string
	Problems     []Problem
}

func (r *Routine) Ref() ObjectRef {
	return ObjectRef{Schema: r.Schema, Name: r.Name}
}

func (r *Routine) AddProblem(detail string, err error) {
	r.Problems = append(r.Problems, Problem{Detail: detail, Err: err})
}

// InputParameters returns the parameters a caller must supply, in ordinal
// order.
func (r *Routine) InputParameters() []Parameter {
	var in []Parameter
	for _, p := range r.Parameters {
		if p.Mode.Accepts() {
			in = append(in, p)
		}
	}
	return in
}

type Trigger struct {
	Schema string
	Name   string
	Table  string
	Events []string
	Timing string
	Body   string
}

func (t *Trigger) Ref() ObjectRef {
	return ObjectRef{Schema: t.Schema, Name: t.Name}
}

// AddEvent appends an event once, keeping the reported order.
func (t *Trigger) AddEvent(event string) {
	event = strings.ToUpper(strings.TrimSpace(event))
	if event == "" {
		return
	}
	for _, e := range t.Events {
		if e == event {
			return
		}
	}
	t.Events = append(t.Events, event)
}
