package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

const memberMutationQuery = "data.saas.member_mutation.deny"

// memberMutationPolicy rejects self-targeted mutations, any mutation of the owner, and promotion to owner.
const memberMutationPolicy = `package saas.member_mutation

deny contains "cannot change your own role" if {
	input.action == "change_role"
	input.actor.id == input.target.id
}

deny contains "cannot remove yourself" if {
	input.action == "remove"
	input.actor.id == input.target.id
}

deny contains "cannot change the owner's role" if {
	input.action == "change_role"
	input.target.role == "owner"
}

deny contains "cannot remove the owner" if {
	input.action == "remove"
	input.target.role == "owner"
}

deny contains "cannot promote a member to owner" if {
	input.action == "change_role"
	input.new_role == "owner"
}
`

// OPAEvaluator evaluates member-mutation rules with an in-process OPA Rego query compiled once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the member-mutation policy.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	q, err := rego.New(
		rego.Query(memberMutationQuery),
		rego.Module("member_mutation.rego", memberMutationPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile member mutation policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// HealthCheck evaluates a benign mutation and expects it to be allowed.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.EvaluateMemberMutation(ctx, MemberMutation{
		Action: ActionChangeRole, ActorID: "a", ActorRole: "admin", TargetID: "b", TargetRole: "user", NewRole: "admin",
	})
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("policy health probe denied: %v", d.Reasons)
	}
	return nil
}

// EvaluateMemberMutation evaluates the policy. Any evaluation failure is returned as an error and
// callers must treat it as a denial.
func (e *OPAEvaluator) EvaluateMemberMutation(ctx context.Context, m MemberMutation) (Decision, error) {
	input := map[string]interface{}{
		"action":   string(m.Action),
		"actor":    map[string]interface{}{"id": m.ActorID, "role": string(m.ActorRole)},
		"target":   map[string]interface{}{"id": m.TargetID, "role": string(m.TargetRole)},
		"new_role": string(m.NewRole),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("eval member mutation policy: %w", err)
	}
	// An empty deny set is still returned as one expression; no result at all means the rule is undefined.
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Allowed: true}, nil
	}
	raw, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("member mutation policy returned %T", rs[0].Expressions[0].Value)
	}
	reasons := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			reasons = append(reasons, s)
		}
	}
	sort.Strings(reasons)
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}
