// Package conditions evaluates task skip/end conditions against current
// workflow data. Evaluation is pure: the advancement engine applies the
// resulting action.
package conditions

import (
	"github.com/procwise/procwise/pkg/models"
)

// Outcome is the aggregate result of evaluating a task's conditions.
type Outcome string

const (
	// OutcomeContinue means no condition fired; the task starts normally.
	OutcomeContinue Outcome = "continue"
	// OutcomeSkip marks the task skipped; advancement moves to the next
	// task.
	OutcomeSkip Outcome = "skip"
	// OutcomeEnd completes the workflow without visiting remaining tasks.
	OutcomeEnd Outcome = "end"
)

// Context carries the data conditions are evaluated against.
type Context struct {
	// Fields holds the current value of every field, keyed by api_name.
	Fields models.FieldValueMap
	// CompletedTasks marks task api_names whose instance is completed.
	CompletedTasks map[string]bool
	// KickoffFilled reports whether the kickoff form has been submitted.
	KickoffFilled bool
}

// Evaluate applies a task's conditions in order. A condition is satisfied
// when at least one of its rules is satisfied; a rule is satisfied when all
// of its predicates are. The first satisfied condition decides the outcome:
// end_workflow wins immediately, skip_task otherwise.
func Evaluate(conds []*models.Condition, evalCtx Context) Outcome {
	outcome := OutcomeContinue

	for _, cond := range conds {
		if !conditionSatisfied(cond, evalCtx) {
			continue
		}

		if cond.Action == models.ActionEndWorkflow {
			return OutcomeEnd
		}

		outcome = OutcomeSkip
	}

	return outcome
}

func conditionSatisfied(cond *models.Condition, evalCtx Context) bool {
	for _, rule := range cond.Rules {
		if ruleSatisfied(rule, evalCtx) {
			return true
		}
	}

	return false
}

func ruleSatisfied(rule *models.ConditionRule, evalCtx Context) bool {
	for _, pred := range rule.Predicates {
		if !predicateSatisfied(pred, evalCtx) {
			return false
		}
	}

	return len(rule.Predicates) > 0
}

func predicateSatisfied(pred *models.Predicate, evalCtx Context) bool {
	switch pred.FieldType {
	case models.FieldTypeKickoff:
		// Only the completed operator is valid for kickoff predicates.
		return pred.Operator == models.OperatorCompleted && evalCtx.KickoffFilled
	case models.FieldTypeTask:
		return pred.Operator == models.OperatorCompleted && evalCtx.CompletedTasks[pred.Field]
	}

	value, ok := evalCtx.Fields[pred.Field]

	switch pred.Operator {
	case models.OperatorExist:
		return ok && !value.IsEmpty()
	case models.OperatorNotExist:
		return !ok || value.IsEmpty()
	case models.OperatorCompleted:
		return ok && !value.IsEmpty()
	case models.OperatorEqual:
		return ok && value.Equals(pred.Value)
	case models.OperatorNotEqual:
		return !ok || !value.Equals(pred.Value)
	case models.OperatorContain:
		return ok && value.Contains(pred.Value)
	case models.OperatorNotContain:
		return !ok || !value.Contains(pred.Value)
	case models.OperatorMoreThan:
		return ok && value.MoreThan(pred.Value)
	case models.OperatorLessThan:
		return ok && value.LessThan(pred.Value)
	default:
		return false
	}
}
