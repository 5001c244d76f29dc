package bus

import (
	"sync"

	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
)

// Priority orders rules for observability; routing itself is priority-blind
// because delivery is a set union.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Conditions are the optional predicate checks a rule applies on top of
// source/type matching.
type Conditions struct {
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	AssetFilter   []string `json:"asset_filter,omitempty"`
}

func (c Conditions) match(msg signal.Signal) bool {
	if c.MinConfidence != nil {
		if msg.Confidence == nil || *msg.Confidence < *c.MinConfidence {
			return false
		}
	}
	if len(c.AssetFilter) > 0 {
		ok := false
		for _, a := range c.AssetFilter {
			if msg.Payload.Asset == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Rule is a declarative mapping from a source module and message types to
// target modules. Rules are static for the process lifetime unless explicitly
// added or removed.
type Rule struct {
	Source     string               `json:"source_module"`
	Targets    []string             `json:"target_modules"`
	Types      []signal.MessageType `json:"message_types"`
	Priority   Priority             `json:"priority"`
	Conditions Conditions           `json:"conditions"`
}

func (r Rule) matches(msg signal.Signal) bool {
	if r.Source != msg.Origin {
		return false
	}
	typeOK := false
	for _, t := range r.Types {
		if t == msg.Type {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return false
	}
	return r.Conditions.match(msg)
}

// Stats summarizes router state for the status endpoint.
type Stats struct {
	QueuedMessages   int                        `json:"queued_messages"`
	TotalRules       int                        `json:"total_rules"`
	HistorySize      int                        `json:"history_size"`
	TypeDistribution map[signal.MessageType]int `json:"message_type_distribution"`
}

// Router matches published signals against routing rules. It keeps a
// per-cycle delivery queue and a bounded history (oldest evicted first).
type Router struct {
	mu         sync.Mutex
	rules      []Rule
	queue      []signal.Signal
	history    []signal.Signal
	maxHistory int
	log        zerolog.Logger
}

func NewRouter(maxHistory int, log zerolog.Logger) *Router {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Router{
		maxHistory: maxHistory,
		log:        log.With().Str("component", "bus").Logger(),
	}
}

func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.Priority == "" {
		rule.Priority = PriorityNormal
	}
	r.rules = append(r.rules, rule)
	r.log.Debug().Str("source", rule.Source).Strs("targets", rule.Targets).Msg("routing rule added")
}

// RemoveRule deletes the first rule matching source and types exactly.
func (r *Router) RemoveRule(source string, types []signal.MessageType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rule := range r.rules {
		if rule.Source != source || len(rule.Types) != len(types) {
			continue
		}
		same := true
		for j := range types {
			if rule.Types[j] != types[j] {
				same = false
				break
			}
		}
		if same {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Publish enqueues a message for this cycle and appends it to the history.
func (r *Router) Publish(msg signal.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, msg)
	r.history = append(r.history, msg)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

// Route returns the union of target modules across all rules matching msg.
// It is a pure function of the rule set and the message.
func (r *Router) Route(msg signal.Signal) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routeLocked(msg)
}

func (r *Router) routeLocked(msg signal.Signal) []string {
	seen := map[string]bool{}
	var targets []string
	for _, rule := range r.rules {
		if !rule.matches(msg) {
			continue
		}
		for _, t := range rule.Targets {
			if !seen[t] {
				seen[t] = true
				targets = append(targets, t)
			}
		}
	}
	return targets
}

// MessagesFor filters the current queue down to messages routed to module.
func (r *Router) MessagesFor(module string) []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []signal.Signal
	for _, msg := range r.queue {
		for _, t := range r.routeLocked(msg) {
			if t == module {
				out = append(out, msg)
				break
			}
		}
	}
	return out
}

// ClearQueue drops the delivery queue. Called once at the start of each cycle;
// history is unaffected.
func (r *Router) ClearQueue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
}

func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	dist := map[signal.MessageType]int{}
	start := 0
	if len(r.history) > 100 {
		start = len(r.history) - 100
	}
	for _, msg := range r.history[start:] {
		dist[msg.Type]++
	}
	return Stats{
		QueuedMessages:   len(r.queue),
		TotalRules:       len(r.rules),
		HistorySize:      len(r.history),
		TypeDistribution: dist,
	}
}

// InstallDefaultRules wires the standard flow: analyzers feed the overseer,
// proposals feed risk, risk verdicts feed execution and the overseer, and the
// regime broadcast reaches every analyzer plus risk for context.
func (r *Router) InstallDefaultRules(analyzers map[string]signal.MessageType) {
	for name, typ := range analyzers {
		r.AddRule(Rule{
			Source:  name,
			Targets: []string{"overseer"},
			Types:   []signal.MessageType{typ},
		})
	}
	r.AddRule(Rule{
		Source:   "overseer",
		Targets:  []string{"risk"},
		Types:    []signal.MessageType{signal.TypeProposal},
		Priority: PriorityHigh,
	})
	r.AddRule(Rule{
		Source:   "risk",
		Targets:  []string{"execution", "overseer"},
		Types:    []signal.MessageType{signal.TypeRisk},
		Priority: PriorityHigh,
	})
	broadcast := make([]string, 0, len(analyzers)+1)
	for name := range analyzers {
		broadcast = append(broadcast, name)
	}
	broadcast = append(broadcast, "risk")
	r.AddRule(Rule{
		Source:  "overseer",
		Targets: broadcast,
		Types:   []signal.MessageType{signal.TypeRegime},
	})
}
