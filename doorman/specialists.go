package doorman

import (
	"fmt"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/state"
	"github.com/hupe1980/concierge/tool"
)

var residentFields = []tool.Field{
	{State: state.FieldResidentName, Description: "Resident's full name", Prompt: "Which resident are you here for? Please tell me their full name."},
	{State: state.FieldUnit, Description: "Unit number", Prompt: "Which unit does the resident live in?"},
}

func visitorAgent(voice string) *agent.Definition {
	fields := append([]tool.Field{
		{State: state.FieldVisitorName, Description: "Visitor's name", Prompt: "May I have your name, please?"},
		{State: state.FieldVisitReason, Arg: "reason", Description: "Reason for the visit", Prompt: "What is the reason for your visit?"},
	}, residentFields...)

	collect := tool.NewCollectTool("collect_visit_details",
		"Record visitor and resident details. Pass whatever the caller has told you; the resident is notified once everything is known.",
		fields, notifyResident).WithActions(action.CheckIdentity, action.NotifyResident, action.RecordVisit)

	return &agent.Definition{
		ID:          Visitor,
		Description: "Announces visitors to residents.",
		Instruction: agent.NewInstructionFromText(
			"You handle visitors. Collect the visitor's name, the reason for the visit and the resident's " +
				"name and unit, one question at a time. Then let collect_visit_details verify the resident " +
				"and notify them."),
		Persona: agent.Persona{Name: "Visitor Services", Voice: voice},
		Tools:   []tool.Tool{collect, backToFrontDesk()},
		OnEnter: []agent.EnterHook{agent.InjectSystem(enterNote)},
	}
}

func notifyResident(tc *tool.Context) (any, error) {
	name, unit := tc.GetString(state.FieldResidentName), tc.GetString(state.FieldUnit)
	ok, res, err := verify(tc, name, unit)
	if err != nil || !ok {
		return res, err
	}

	visitor, reason := tc.GetString(state.FieldVisitorName), tc.GetString(state.FieldVisitReason)
	notified, err := tc.Invoke(action.NotifyResident, map[string]any{
		"name":    name,
		"unit":    unit,
		"message": fmt.Sprintf("Visitor: %s\nReason: %s\nAt: %s %s", visitor, reason, name, unit),
	})
	if err != nil || !notified.Success {
		return notified, err
	}
	if _, err := tc.Invoke(action.RecordVisit, map[string]any{
		"resident": name,
		"unit":     unit,
		"visitor":  visitor,
		"reason":   reason,
		"kind":     "visit",
	}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s They'll be with you shortly. Thank you!", notified.Message), nil
}

func deliveryAgent(opts Options, voice string) *agent.Definition {
	door := opts.Door
	collect := tool.NewCollectTool("collect_recipient",
		"Record the delivery recipient. The door opens once the recipient is verified.",
		residentFields,
		func(tc *tool.Context) (any, error) {
			name, unit := tc.GetString(state.FieldResidentName), tc.GetString(state.FieldUnit)
			ok, res, err := verify(tc, name, unit)
			if err != nil || !ok {
				return res, err
			}
			opened, err := tc.Invoke(action.OpenDoor, map[string]any{"door": door})
			if err != nil {
				return nil, err
			}
			if _, err := tc.Invoke(action.RecordVisit, map[string]any{
				"resident": name,
				"unit":     unit,
				"reason":   "package delivery",
				"kind":     "delivery",
			}); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Delivery approved. %s Please leave the package inside.", opened.Message), nil
		}).WithActions(action.CheckIdentity, action.OpenDoor, action.RecordVisit)

	return &agent.Definition{
		ID:          Delivery,
		Description: "Verifies delivery recipients and grants access.",
		Instruction: agent.NewInstructionFromText(
			"You handle deliveries. Ask for the recipient's full name and unit, then let " +
				"collect_recipient verify them and open the door."),
		Persona: agent.Persona{Name: "Deliveries", Voice: voice},
		Tools:   []tool.Tool{collect, backToFrontDesk()},
		OnEnter: []agent.EnterHook{agent.InjectSystem(enterNote)},
	}
}

func maintenanceAgent(opts Options, voice string) *agent.Definition {
	farewell := opts.Farewell
	fields := append(append([]tool.Field(nil), residentFields...), tool.Field{
		State: state.FieldIssueDescription, Arg: "issue", Description: "Description of the issue",
		Prompt: "Please describe the maintenance issue.",
	})

	logRequest := tool.NewCollectTool("log_maintenance_request",
		"Record a maintenance request. The call ends once the ticket is logged.",
		fields,
		func(tc *tool.Context) (any, error) {
			res, err := tc.Invoke(action.LogTicket, map[string]any{
				"resident":    tc.GetString(state.FieldResidentName),
				"unit":        tc.GetString(state.FieldUnit),
				"description": tc.GetString(state.FieldIssueDescription),
			})
			if err != nil {
				return nil, err
			}
			if !res.Success {
				return res, nil
			}
			tc.Terminate(res.Message + " " + farewell)
			return res, nil
		}).WithActions(action.LogTicket)

	return &agent.Definition{
		ID:          Maintenance,
		Description: "Logs maintenance requests.",
		Instruction: agent.NewInstructionFromText(
			"You take maintenance requests. Collect the resident's name, unit and a short description " +
				"of the issue, then log the request with log_maintenance_request."),
		Persona: agent.Persona{Name: "Maintenance", Voice: voice},
		Tools:   []tool.Tool{logRequest, backToFrontDesk()},
		OnEnter: []agent.EnterHook{agent.InjectSystem(enterNote)},
	}
}

func rentalAgent(voice string) *agent.Definition {
	list := tool.NewFunctionTool("list_vacancies",
		"List the vacant units and notify the property manager about the inquiry.", nil,
		func(tc *tool.Context, _ map[string]any) (any, error) {
			res, err := tc.Invoke(action.ListVacancies, nil)
			if err != nil {
				return nil, err
			}
			if units, ok := res.Data["units"].([]string); ok {
				if err := tc.SetState(state.FieldVacancies, units); err != nil {
					return nil, err
				}
			}
			return res, nil
		}).WithActions(action.ListVacancies)

	return &agent.Definition{
		ID:          Rental,
		Description: "Answers rental inquiries.",
		Instruction: agent.NewInstructionFromText(
			"You answer rental inquiries. Use list_vacancies to tell the caller which units are " +
				"available.{{if .vacancies}} Known vacancies: {{join \", \" .vacancies}}.{{end}}"),
		Persona: agent.Persona{Name: "Rentals", Voice: voice},
		Tools:   []tool.Tool{list, backToFrontDesk()},
	}
}

// verify runs the identity check. A failed check clears the resident fields
// so the caller is asked again.
func verify(tc *tool.Context, name, unit string) (bool, action.Result, error) {
	res, err := tc.Invoke(action.CheckIdentity, map[string]any{"name": name, "unit": unit})
	if err != nil {
		return false, action.Result{}, err
	}
	if !res.Success {
		if err := tc.UnsetState(state.FieldResidentName, state.FieldUnit); err != nil {
			return false, action.Result{}, err
		}
	}
	return res.Success, res, nil
}
