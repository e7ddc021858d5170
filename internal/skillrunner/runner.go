package skillrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/tools"
)

// skillTool is a manifest paired with its compiled argument schema,
// ready to be exposed to the LLM and dispatched against.
type skillTool struct {
	manifest *Manifest
	grant    *capability.Grant
	schema   *jsonschema.Schema
}

// Runner discovers skill manifests under a root directory, rejects
// any whose required_caps exceed the process grant, and dispatches
// tool_use calls to warm subprocess sessions. It implements
// agent.ToolDispatcher by method shape (Dispatch/Schemas/EndTurn)
// without importing the agent package, keeping the dependency graph
// one-directional: agent composes dispatchers, dispatchers don't know
// about the orchestrator.
type Runner struct {
	cfg          Config
	processGrant *capability.Grant
	audit        *audit.Logger

	mu       sync.Mutex
	tools    map[string]*skillTool
	sessions map[string]*session
}

// Config controls discovery and launch behavior.
type Config struct {
	SkillsDir    string
	ScratchRoot  string
	Canonicalize func(string) (string, error)
}

// New discovers manifests under cfg.SkillsDir, validates each against
// processGrant, and returns a Runner exposing only the manifests that
// passed validation. Rejected manifests are reported in rejected
// (keyed by skill directory path) rather than causing New to fail, matching
// spec.md §8 scenario 6: "manifest rejected at load, skill not
// registered, no session ever spawned" — for that one skill, not the
// whole process.
func New(cfg Config, processGrant *capability.Grant, auditLogger *audit.Logger) (runner *Runner, rejected map[string]error, err error) {
	r := &Runner{
		cfg:          cfg,
		processGrant: processGrant,
		audit:        auditLogger,
		tools:        make(map[string]*skillTool),
		sessions:     make(map[string]*session),
	}

	tools, rejected, err := discoverTools(cfg, processGrant)
	if err != nil {
		return nil, nil, err
	}
	r.tools = tools
	return r, rejected, nil
}

// Reload re-runs discovery and validation and swaps in the surviving
// tool set atomically, without disturbing in-flight warm sessions for
// skills whose manifest didn't change — this is the body the cron
// skill re-discovery task (internal/cron) schedules periodically.
func (r *Runner) Reload(ctx context.Context) error {
	tools, _, err := discoverTools(r.cfg, r.processGrant)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return nil
}

func discoverTools(cfg Config, processGrant *capability.Grant) (map[string]*skillTool, map[string]error, error) {
	manifests, parseErrs, discoverErr := DiscoverManifests(cfg.SkillsDir)
	if discoverErr != nil {
		return nil, nil, fmt.Errorf("skillrunner: discover manifests: %w", discoverErr)
	}

	found := make(map[string]*skillTool)
	rejected := make(map[string]error, len(parseErrs))
	for dir, perr := range parseErrs {
		rejected[dir] = perr
	}

	for _, m := range manifests {
		if err := ValidateRequiredCaps(m, processGrant, cfg.Canonicalize); err != nil {
			rejected[m.Name] = err
			continue
		}
		reduced, err := ReducedGrant(m, processGrant, cfg.Canonicalize)
		if err != nil {
			rejected[m.Name] = err
			continue
		}
		schemaJSON, err := m.ParameterSchemaJSON()
		if err != nil {
			rejected[m.Name] = fmt.Errorf("skillrunner: skill %q: %w", m.Name, err)
			continue
		}
		compiled, err := compileSchema(m.Name, schemaJSON)
		if err != nil {
			rejected[m.Name] = fmt.Errorf("skillrunner: skill %q: invalid parameter_schema: %w", m.Name, err)
			continue
		}
		found[m.ToolName()] = &skillTool{manifest: m, grant: reduced, schema: compiled}
	}

	if len(rejected) == 0 {
		rejected = nil
	}
	return found, rejected, nil
}

func compileSchema(name string, schemaJSON []byte) (*jsonschema.Schema, error) {
	return jsonschema.CompileString(name+".schema.json", string(schemaJSON))
}

// Schemas returns the LLM-facing tool definitions for every validated
// skill.
func (r *Runner) Schemas() []tools.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]tools.Definition, 0, len(r.tools))
	for name, st := range r.tools {
		schemaJSON, err := st.manifest.ParameterSchemaJSON()
		if err != nil {
			continue
		}
		defs = append(defs, tools.Definition{
			Name:        name,
			Description: st.manifest.Description,
			Schema:      json.RawMessage(schemaJSON),
		})
	}
	return defs
}

// Dispatch resolves name to a skill, validates args against its
// parameter_schema, launches (or reuses) its warm session, and
// invokes it. A name this Runner doesn't recognize returns a
// not-found sentinel result so a ChainDispatcher can try the next
// stage.
func (r *Runner) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	r.mu.Lock()
	st, ok := r.tools[name]
	r.mu.Unlock()
	if !ok {
		data, _ := json.Marshal(map[string]string{"kind": string(tools.KindNotFound), "message": "unknown tool: " + name})
		return &tools.Result{Content: string(data), IsError: true}, nil
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return invalidArgsResult(err), nil
	}
	if err := st.schema.Validate(decoded); err != nil {
		return invalidArgsResult(err), nil
	}

	sess, err := r.sessionFor(ctx, st)
	if err != nil {
		return nil, err
	}

	res, err := sess.invoke(ctx, name, args, st.grant.CommandTimeout)
	if err != nil {
		r.dropSession(st.manifest.Name)
		return nil, err
	}
	return res, nil
}

func invalidArgsResult(err error) *tools.Result {
	data, _ := json.Marshal(map[string]string{"kind": string(tools.KindInvalid), "message": err.Error()})
	return &tools.Result{Content: string(data), IsError: true}
}

// sessionFor returns the warm session for st's skill, launching one
// if this is the first invocation this turn (spec.md §4.3 Lifecycle:
// "may be reused for multiple invocations within a turn").
func (r *Runner) sessionFor(ctx context.Context, st *skillTool) (*session, error) {
	r.mu.Lock()
	if sess, ok := r.sessions[st.manifest.Name]; ok && !sess.dead {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	sess, err := startSession(ctx, st.manifest, r.cfg.ScratchRoot)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[st.manifest.Name] = sess
	r.mu.Unlock()

	if r.audit != nil {
		turnID, _ := tools.TurnIDFromContext(ctx)
		r.audit.SkillLaunch(turnID, st.manifest.Name)
	}
	return sess, nil
}

func (r *Runner) dropSession(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[name]; ok {
		sess.kill()
		delete(r.sessions, name)
	}
}

// EndTurn tears down every warm session started during turnID — per
// spec.md §4.3, a skill process "must be torn down at turn end"
// regardless of whether it is still healthy.
func (r *Runner) EndTurn(turnID string) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for name, sess := range sessions {
		sess.kill()
		if r.audit != nil {
			r.audit.SkillExit(turnID, name, "turn_end")
		}
	}
}
