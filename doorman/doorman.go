// Package doorman assembles the virtual doorman agent set: a front desk agent
// that routes callers to visitor, delivery, maintenance and rental
// specialists, each with its own voice and tools.
package doorman

import (
	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/tool"
)

// Agent ids.
const (
	Main        = "main"
	Visitor     = "visitor"
	Delivery    = "delivery"
	Maintenance = "maintenance"
	Rental      = "rental"
)

// Greeting is spoken by the front desk when a caller connects.
const Greeting = "Welcome! Are you visiting a resident, making a delivery, reporting a maintenance issue or asking about a rental?"

// Farewell ends the call.
const Farewell = "Thank you for calling. Goodbye!"

// DefaultVoices maps agent ids to TTS voices.
var DefaultVoices = map[string]string{
	Main:        "ash",
	Visitor:     "coral",
	Delivery:    "sage",
	Maintenance: "echo",
	Rental:      "shimmer",
}

// Options configures the agent set.
type Options struct {
	// Building is mentioned in the front desk instruction.
	Building string
	// Voices overrides DefaultVoices per agent id.
	Voices map[string]string
	// Farewell is spoken by end_call and after a maintenance ticket.
	Farewell string
	// Door is opened for verified deliveries.
	Door string
}

// Agents returns the doorman definitions with the front desk first.
func Agents(optFns ...func(o *Options)) []*agent.Definition {
	opts := Options{Building: "the building", Farewell: Farewell, Door: "lobby"}
	for _, fn := range optFns {
		fn(&opts)
	}
	voice := func(id string) string {
		if v, ok := opts.Voices[id]; ok {
			return v
		}
		return DefaultVoices[id]
	}

	return []*agent.Definition{
		frontDesk(opts, voice(Main)),
		visitorAgent(voice(Visitor)),
		deliveryAgent(opts, voice(Delivery)),
		maintenanceAgent(opts, voice(Maintenance)),
		rentalAgent(voice(Rental)),
	}
}

// NewRegistry registers the doorman agents.
func NewRegistry(optFns ...func(o *Options)) (*agent.Registry, error) {
	return agent.NewRegistry(Agents(optFns...)...)
}

// Providers returns the action providers the doorman tools require.
func Providers(deps action.Dependencies) action.Set {
	return action.NewDefaultSet(deps)
}

func frontDesk(opts Options, voice string) *agent.Definition {
	return &agent.Definition{
		ID:          Main,
		Description: "Front desk that finds out why the caller is here.",
		Instruction: agent.NewInstructionFromText(
			"You are the virtual doorman of " + opts.Building + ". Determine whether the caller is " +
				"1. visiting a resident, 2. making a delivery, 3. reporting a maintenance issue or " +
				"4. asking about a rental. Ask one question at a time and use your tools to transfer " +
				"the caller to the right colleague. Call end_call when the caller is done."),
		Persona: agent.Persona{Name: "Front Desk", Voice: voice},
		Tools: []tool.Tool{
			tool.NewTransferTool(Visitor, "Transfer to visitor services when someone is visiting a resident.", message("Transferring to visitor services")),
			tool.NewTransferTool(Delivery, "Transfer to delivery services for package deliveries.", message("Transferring to delivery services")),
			tool.NewTransferTool(Maintenance, "Transfer to maintenance for repair requests.", message("Transferring to maintenance")),
			tool.NewTransferTool(Rental, "Transfer to rentals for apartment availability.", message("Transferring to rentals")),
			tool.NewEndSessionTool("end_call", "End the call once the caller has everything they need.", opts.Farewell),
		},
	}
}

func backToFrontDesk() tool.Tool {
	return tool.NewTransferTool(Main, "Return the caller to the front desk when the request is outside your area.",
		message("Transferring you back to the front desk"))
}

func message(text string) func(o *tool.TransferOptions) {
	return func(o *tool.TransferOptions) { o.Message = text }
}

// enterNote reminds a specialist of what is already known about the caller.
const enterNote = "{{if .resident_name}}The caller mentioned resident {{.resident_name}}{{if .unit}} in unit {{.unit}}{{end}}. Confirm before asking again.{{else}}No resident has been named yet.{{end}}"
