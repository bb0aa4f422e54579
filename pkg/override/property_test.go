//go:build property

package override

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var genRisk = gen.OneConstOf(RiskLow, RiskMedium, RiskHigh, RiskCritical)

// TestValidateCreateInvariants checks that every accepted request satisfies
// the risk and emergency rules regardless of input.
func TestValidateCreateInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	v := NewValidator(nil)

	properties.Property("accepted requests obey risk and emergency rules", prop.ForAll(
		func(risk RiskLevel, emergency bool, priority, justLen int, withCase bool) bool {
			req := highRiskRequest()
			req.RiskLevel = risk
			req.IsEmergency = emergency
			req.PriorityLevel = priority
			req.Justification = strings.Repeat("j", justLen)
			if !withCase {
				req.BusinessCase = ""
			}

			out, err := v.ValidateCreate(req)
			if err != nil {
				return true
			}
			if out.PriorityLevel < 1 || out.PriorityLevel > 10 {
				return false
			}
			if textLen(out.Justification) < v.JustificationMinLength(risk) {
				return false
			}
			if risk.IsHigh() && out.BusinessCase == "" {
				return false
			}
			if emergency && (!risk.IsHigh() || out.PriorityLevel > 2 || justLen < 50) {
				return false
			}
			return true
		},
		genRisk,
		gen.Bool(),
		gen.IntRange(-2, 12),
		gen.IntRange(0, 140),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestMachineTerminalStates checks that no action sequence leaves a
// terminal state.
func TestMachineTerminalStates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	m := NewMachine()
	genAction := gen.OneConstOf(ActionApprove, ActionReject, ActionActivate, ActionRevoke,
		ActionComplete, ActionExpire, ActionMonitor, ActionDelete)

	properties.Property("terminal states are absorbing", prop.ForAll(
		func(actions []Action) bool {
			status := StatusPending
			for _, a := range actions {
				next, err := m.Next(status, a)
				if err != nil {
					if next != status {
						return false
					}
					continue
				}
				if IsTerminal(status) && next != status {
					return false
				}
				status = next
			}
			return status.Valid()
		},
		gen.SliceOf(genAction),
	))

	properties.TestingRun(t)
}

// TestServiceActionSequences drives random action sequences through the
// service and checks the stored row after each step.
func TestServiceActionSequences(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)
	genAction := gen.OneConstOf(ActionApprove, ActionReject, ActionActivate, ActionRevoke,
		ActionComplete, ActionMonitor)

	properties.Property("approval fields and audit trail follow the status", prop.ForAll(
		func(actions []Action) bool {
			f := newFixture(t)
			ctx := context.Background()
			o := f.create(t, ageRequest())
			changes := 0

			for _, a := range actions {
				var err error
				switch a {
				case ActionApprove:
					_, err = f.svc.Approve(ctx, o.ID, "manager", "Consent verified")
				case ActionReject:
					_, err = f.svc.Reject(ctx, o.ID, "manager", "Role is not suitable")
				case ActionActivate:
					_, err = f.svc.Activate(ctx, o.ID, "manager", "")
				case ActionRevoke:
					_, err = f.svc.Revoke(ctx, o.ID, "manager", "Consent withdrawn")
				case ActionComplete:
					_, err = f.svc.Complete(ctx, o.ID, "manager", "Event finished")
				case ActionMonitor:
					_, err = f.svc.UpdateMonitoring(ctx, o.ID, "manager", "Checked in with supervisor")
				}
				if err == nil {
					changes++
				}

				rec := f.stored(t, o.ID)
				switch rec.Status {
				case StatusApproved, StatusActive, StatusCompleted:
					if rec.ApprovedBy == "" || rec.ApprovedAt == nil {
						return false
					}
				}
				if rec.Status == StatusActive && (rec.EffectiveFrom == nil || rec.AppliedAt == nil) {
					return false
				}
				if IsTerminal(rec.Status) && rec.StatusChangedAt == nil {
					return false
				}
				if rec.Version != changes+1 {
					return false
				}
			}
			return len(f.auditEvents(t, o.ID)) == changes+1
		},
		gen.SliceOfN(8, genAction),
	))

	properties.TestingRun(t)
}
