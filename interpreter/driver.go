// Package interpreter walks a Comlink Map AST to produce a use-case
// result. The design notes call for a resumable visitor state machine
// so suspension points (HTTP, sandbox evaluation, sub-operation calls)
// never unwind an arbitrary host stack. For the completion variant this
// module implements (per the documented Open-Question decision, see
// DESIGN.md), Go's own call stack already gives the needed properties:
// depth bounded by AST depth, deterministic, and re-entrant since no
// frame holds shared mutable state across calls. execStmt (statement
// position) and evalExpr (expression position) below are the dispatch
// points every node kind goes through, playing the role the source's
// per-visitor `step(lastDone)` method plays; the Walker interface is the documented extension point for a future
// streaming/resumable variant.
package interpreter

import (
	"context"
	"fmt"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/httpengine"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/sandbox"
	"github.com/oneclient/comlink-runtime/variables"
)

// Outcome is a visitor's announcement to its ancestors: either data or
// an error, with an optional flow-terminating flag. Error outcomes
// dominate data outcomes: Merge never lets a later data outcome
// overwrite an already-set error.
type Outcome struct {
	HasData    bool
	Data       variables.Value
	HasError   bool
	Err        error
	FromHTTP   bool
	HTTPStatus int
	Terminate  bool
}

// Merge combines the receiver (earlier) outcome with next (later),
// honoring the error-dominates-data invariant from §3. A later outcome
// that announces neither data, an error, nor termination leaves the
// earlier one in place.
func (o Outcome) Merge(next Outcome) Outcome {
	if o.HasError {
		return o
	}
	if !next.HasData && !next.HasError && !next.Terminate {
		return o
	}
	return next
}

// UnhandledHTTPHook is the injected collaborator consulted when no
// response handler matches an HTTP call; absent, any status >= 400
// becomes an HTTPError.
type UnhandledHTTPHook func(ctx context.Context, resp *httpengine.Response) (retry bool, err error)

// Walker is the documented extension point for a streaming interpreter
// variant that yields partial results instead of running to completion.
// It is intentionally unimplemented: the source carries two coexisting
// drafts (one to-completion, one streaming with an unfinished `yield`),
// and the design notes ask for the completion variant only, leaving this
// hook as where a resumable driver would plug in.
type Walker interface {
	Yield(ctx context.Context) (done bool, partial variables.Value, err error)
}

// Driver executes one MapDocument's use-cases.
type Driver struct {
	Document      *mapast.MapDocument
	HTTP          *httpengine.Engine
	Sandbox       sandbox.Sandbox
	UnhandledHTTP UnhandledHTTPHook
	ServiceURL    func(serviceID string) (string, bool)
	Security      func(id string) (*httpengine.SecurityConfig, error)
}

// frameID tags recursion depth through execStatements/execStmt. The
// depth is passed down the recursion but nothing reads it; it carries
// no assertion of its own.
type frameID uint64

// Run executes useCaseName's MapDefinition against input, returning the
// resolved result value or a taxonomy error. Per §3/§9's binary-data
// lifecycle: input's BinaryData handles are Initialize'd before the walk
// starts, Destroy'd once it completes successfully, and any BinaryData
// handles still present in the result are materialized via GetAllData
// before the value leaves the runtime.
func (d *Driver) Run(ctx context.Context, useCaseName string, input, parameters variables.Value) (variables.Value, error) {
	var def *mapast.MapDefinition
	for _, m := range d.Document.Maps {
		if m.UseCaseName == useCaseName {
			def = m
			break
		}
	}
	if def == nil {
		return nil, comlinkerr.NewMapASTError(fmt.Sprintf("use-case %q not found in map document", useCaseName), d.Document)
	}

	if err := variables.InitializeBinaryData(input); err != nil {
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("initializing binary data: %s", err), nil)
	}

	stack := variables.Mapping{"input": input, "parameters": parameters}
	out, _, err := d.execStatements(ctx, stack, def.Statements, 0)
	if err != nil {
		d.attachASTPath(err)
		return nil, err
	}

	result, err := d.resolveFinal(out)
	if err != nil {
		d.attachASTPath(err)
		return nil, err
	}

	if err := variables.DestroyBinaryData(input); err != nil {
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("destroying binary data: %s", err), nil)
	}

	return result, nil
}

// attachASTPath resolves err's offending-node identity to a path from
// the document root via mapast.FindPath and records it on the error, the
// §4.1 step of attaching document-AST metadata to an interpretation
// failure before it leaves the driver. A no-op for any other error kind
// or an unresolvable node.
func (d *Driver) attachASTPath(err error) {
	interpErr, ok := comlinkerr.As[*comlinkerr.InterpretationError](err)
	if !ok {
		return
	}
	node, ok := interpErr.Node.(mapast.Node)
	if !ok || node == nil {
		return
	}
	if path, ok := mapast.FindPath(d.Document, node); ok {
		interpErr.SetASTPath(path)
	}
}

// resolveFinal implements "Final outcome resolution": wrap an error
// outcome as MappedHTTPError (if it arose from-http) or MappedError;
// otherwise materialize any deferred binary data left in the data value
// and return it (nil if no outcome was ever set).
func (d *Driver) resolveFinal(out Outcome) (variables.Value, error) {
	if out.HasError {
		if out.FromHTTP {
			return nil, comlinkerr.NewMappedHTTPError(out.HTTPStatus, out.Data)
		}
		return nil, comlinkerr.NewMappedError(out.Data)
	}
	materialized, err := variables.MaterializeBinaryData(out.Data)
	if err != nil {
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("materializing binary data in result: %s", err), nil)
	}
	return materialized, nil
}

// execStatements runs stmts in source order against stack, returning the
// last-merged Outcome. A statement that sets a terminating outcome
// stops the loop immediately, per MapDefinition/OperationDefinition's
// per-node contract.
func (d *Driver) execStatements(ctx context.Context, stack variables.Value, stmts []mapast.Node, depth frameID) (Outcome, variables.Value, error) {
	var current Outcome
	for _, stmt := range stmts {
		next, newStack, err := d.execStmt(ctx, stack, stmt, depth+1)
		if err != nil {
			return Outcome{}, stack, err
		}
		stack = newStack
		current = current.Merge(next)
		if next.Terminate || current.HasError {
			return current, stack, nil
		}
	}
	return current, stack, nil
}

// execStmt dispatches one statement-position node.
func (d *Driver) execStmt(ctx context.Context, stack variables.Value, node mapast.Node, depth frameID) (Outcome, variables.Value, error) {
	switch n := node.(type) {

	case *mapast.SetStatement:
		if n.Condition != nil {
			ok, err := d.evalCondition(ctx, stack, n.Condition)
			if err != nil {
				return Outcome{}, stack, err
			}
			if !ok {
				return Outcome{}, stack, nil
			}
		}
		for _, a := range n.Assignments {
			v, err := d.evalExpr(ctx, stack, a.Value)
			if err != nil {
				return Outcome{}, stack, err
			}
			shaped := variables.FromPath(a.Key, v)
			stack = variables.Merge(stack, shaped)
		}
		return Outcome{}, stack, nil

	case *mapast.CallStatement:
		out, err := d.execCall(ctx, &stack, n.OperationName, n.Iteration, n.Condition, n.Arguments, false)
		if err != nil {
			return Outcome{}, stack, err
		}
		stack = variables.Merge(stack, variables.Mapping{"outcome": callOutcomeValue(out)})
		return d.execStatements(ctx, stack, n.FollowUp, depth+1)

	case *mapast.HttpCallStatement:
		return d.execHTTPCall(ctx, stack, n, depth)

	case *mapast.OutcomeStatement:
		if n.Condition != nil {
			ok, err := d.evalCondition(ctx, stack, n.Condition)
			if err != nil {
				return Outcome{}, stack, err
			}
			if !ok {
				return Outcome{}, stack, nil
			}
		}
		v, err := d.evalExpr(ctx, stack, n.Value)
		if err != nil {
			return Outcome{}, stack, err
		}
		if n.IsError {
			return Outcome{HasError: true, Err: comlinkerr.NewMappedError(v), Terminate: n.Terminate, Data: v}, stack, nil
		}
		return Outcome{HasData: true, Data: v, Terminate: n.Terminate}, stack, nil

	default:
		// Expression-position nodes reached in statement position (e.g. a
		// bare JessieExpression) are evaluated for side effect only.
		_, err := d.evalExpr(ctx, stack, node)
		return Outcome{}, stack, err
	}
}

func callOutcomeValue(o Outcome) variables.Value {
	m := variables.Mapping{}
	if o.HasData {
		m["data"] = o.Data
	}
	if o.HasError {
		m["error"] = variables.Stringify(o.Err)
	}
	return m
}

// evalCondition evaluates a ConditionAtom against stack, coercing to
// bool per the sandbox's truthiness rule.
func (d *Driver) evalCondition(ctx context.Context, stack variables.Value, c *mapast.ConditionAtom) (bool, error) {
	v, err := d.evalExpr(ctx, stack, c.Expression)
	if err != nil {
		return false, err
	}
	return sandbox.CoerceBool(v), nil
}

// evalExpr evaluates an expression-position node to a value.
func (d *Driver) evalExpr(ctx context.Context, stack variables.Value, node mapast.Node) (variables.Value, error) {
	if node == nil {
		return nil, nil
	}
	switch n := node.(type) {

	case *mapast.PrimitiveLiteral:
		return n.Value, nil

	case *mapast.JessieExpression:
		scope, _ := variables.AsMapping(stack)
		out, err := d.Sandbox.Eval(n.Source, scope)
		if err != nil {
			return nil, comlinkerr.NewJessieError(err.Error(), n, err)
		}
		return out, nil

	case *mapast.ObjectLiteral:
		var result variables.Value = variables.Mapping{}
		for _, f := range n.Fields {
			v, err := d.evalExpr(ctx, stack, f.Value)
			if err != nil {
				return nil, err
			}
			result = variables.Merge(result, variables.FromPath(f.Key, v))
		}
		return result, nil

	case *mapast.ConditionAtom:
		return d.evalCondition(ctx, stack, n)

	case *mapast.IterationAtom:
		return d.evalExpr(ctx, stack, n.Iterable)

	case *mapast.InlineCall:
		out, err := d.execCall(ctx, &stack, n.OperationName, n.Iteration, n.Condition, n.Arguments, true)
		if err != nil {
			return nil, err
		}
		if out.HasError {
			return nil, comlinkerr.NewMapASTError("Unexpected inline call failure", n)
		}
		return out.Data, nil

	case *mapast.Assignment:
		v, err := d.evalExpr(ctx, stack, n.Value)
		if err != nil {
			return nil, err
		}
		return variables.FromPath(n.Key, v), nil

	default:
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("node of type %T is not valid in expression position", node), node)
	}
}

// execCall implements the uniform InlineCall/CallStatement path from
// §4.1: with iteration, drive each pass and accumulate; without, a
// single pass over one implicit unit. inline=true accumulates an array
// of data values (fatal on any error); inline=false (statement call)
// returns the final pass's Outcome directly, so the caller can bind
// `outcome` and run follow-up statements.
func (d *Driver) execCall(ctx context.Context, callerStack *variables.Value, opName string, iteration *mapast.IterationAtom, condition *mapast.ConditionAtom, args []*mapast.Assignment, inline bool) (Outcome, error) {
	op, ok := d.Document.Operations[opName]
	if !ok {
		return Outcome{}, comlinkerr.NewMapASTError(fmt.Sprintf("operation %q not found", opName), nil)
	}

	var items []variables.Value
	if iteration != nil {
		iterable, err := d.evalExpr(ctx, *callerStack, iteration.Iterable)
		if err != nil {
			return Outcome{}, err
		}
		arr, ok := iterable.([]any)
		if !ok {
			return Outcome{}, comlinkerr.NewMapASTError("IterationAtom requires an iterable result", iteration)
		}
		items = arr
	} else {
		items = []variables.Value{nil}
	}

	var accumulated []variables.Value
	var last Outcome

	for _, item := range items {
		passStack := *callerStack
		if iteration != nil {
			passStack = variables.Merge(passStack, variables.Mapping{iteration.IterationVariable: item})
		}
		if condition != nil {
			ok, err := d.evalCondition(ctx, passStack, condition)
			if err != nil {
				return Outcome{}, err
			}
			if !ok {
				continue
			}
		}

		var argsMap variables.Value = variables.Mapping{}
		for _, a := range args {
			v, err := d.evalExpr(ctx, passStack, a.Value)
			if err != nil {
				return Outcome{}, err
			}
			argsMap = variables.Merge(argsMap, variables.FromPath(a.Key, v))
		}

		opStack := variables.Mapping{"args": argsMap}
		out, _, err := d.execStatements(ctx, opStack, op.Statements, 0)
		if err != nil {
			return Outcome{}, err
		}
		last = out

		if inline {
			if out.HasError {
				return out, nil
			}
			accumulated = append(accumulated, out.Data)
		} else if out.HasError {
			break
		}
	}

	if inline {
		if iteration != nil {
			return Outcome{HasData: true, Data: toAnySlice(accumulated)}, nil
		}
		if len(accumulated) == 0 {
			return Outcome{HasData: true, Data: nil}, nil
		}
		return Outcome{HasData: true, Data: accumulated[0]}, nil
	}
	return last, nil
}

func toAnySlice(vs []variables.Value) []any {
	out := make([]any, len(vs))
	copy(out, vs)
	return out
}
