package models

// ConditionAction is what happens to the bound task when its condition is
// satisfied.
type ConditionAction string

const (
	// ActionSkipTask marks the task SKIPPED and advancement continues with
	// the next task.
	ActionSkipTask ConditionAction = "skip_task"
	// ActionEndWorkflow completes the workflow without visiting the
	// remaining tasks.
	ActionEndWorkflow ConditionAction = "end_workflow"
)

// PredicateOperator compares a referenced field (or task / kickoff state)
// against the predicate value.
type PredicateOperator string

const (
	OperatorExist      PredicateOperator = "exist"
	OperatorNotExist   PredicateOperator = "not_exist"
	OperatorCompleted  PredicateOperator = "completed"
	OperatorEqual      PredicateOperator = "equal"
	OperatorNotEqual   PredicateOperator = "not_equal"
	OperatorContain    PredicateOperator = "contain"
	OperatorNotContain PredicateOperator = "not_contain"
	OperatorMoreThan   PredicateOperator = "more_than"
	OperatorLessThan   PredicateOperator = "less_than"
)

// Unary reports whether the operator ignores the predicate value.
func (o PredicateOperator) Unary() bool {
	switch o {
	case OperatorExist, OperatorNotExist, OperatorCompleted:
		return true
	default:
		return false
	}
}

// OperatorsForFieldType lists the operators valid for a predicate target
// type. Mismatches are template-authoring errors surfaced at save time,
// never at evaluation time.
func OperatorsForFieldType(t FieldType) []PredicateOperator {
	switch t {
	case FieldTypeKickoff:
		return []PredicateOperator{OperatorCompleted}
	case FieldTypeTask:
		return []PredicateOperator{OperatorCompleted}
	case FieldTypeNumber, FieldTypeDate:
		return []PredicateOperator{
			OperatorExist, OperatorNotExist,
			OperatorEqual, OperatorNotEqual,
			OperatorMoreThan, OperatorLessThan,
		}
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return []PredicateOperator{
			OperatorExist, OperatorNotExist,
			OperatorEqual, OperatorNotEqual,
			OperatorContain, OperatorNotContain,
		}
	case FieldTypeUser:
		return []PredicateOperator{
			OperatorExist, OperatorNotExist,
			OperatorEqual, OperatorNotEqual,
		}
	default:
		return []PredicateOperator{
			OperatorExist, OperatorNotExist,
			OperatorEqual, OperatorNotEqual,
			OperatorContain, OperatorNotContain,
		}
	}
}

// Condition is a rule-set bound to a task. Conditions are evaluated in Order
// when the task is about to start. A condition is satisfied when at least one
// of its rules is satisfied.
type Condition struct {
	APIName string           `json:"api_name" validate:"required"`
	Action  ConditionAction  `json:"action"   validate:"required,oneof=skip_task end_workflow"`
	Order   int              `json:"order"`
	Rules   []*ConditionRule `json:"rules"    validate:"required,min=1,dive"`
}

// ConditionRule is satisfied when all of its predicates are satisfied.
type ConditionRule struct {
	APIName    string       `json:"api_name"   validate:"required"`
	Predicates []*Predicate `json:"predicates" validate:"required,min=1,dive"`
}

// Predicate compares one referenced entity against a value. Field references
// the api_name of a field for field-typed predicates, a task api_name for
// FieldTypeTask, and is empty for FieldTypeKickoff.
type Predicate struct {
	APIName   string            `json:"api_name" validate:"required"`
	Operator  PredicateOperator `json:"operator" validate:"required"`
	FieldType FieldType         `json:"field_type" validate:"required"`
	Field     string            `json:"field,omitempty"`
	Value     string            `json:"value,omitempty"`
}
