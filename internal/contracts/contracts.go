// Package contracts checks fixture files against the shapes the workbench
// expects before the local backend serves them.
package contracts

import "github.com/Metaculus/metaculus-sub005/internal/keyfactor"

// Contract describes what a question of one type must carry.
type Contract struct {
	Type            keyfactor.QuestionType
	RequiresOptions bool
	// Grouped reports whether the type may appear inside group_of_questions.
	Grouped bool
	// UnitHint is shown when a base rate targets the question and no unit is set.
	UnitHint string
}

var questionContracts = map[keyfactor.QuestionType]Contract{
	keyfactor.QuestionBinary: {
		Type:    keyfactor.QuestionBinary,
		Grouped: true,
	},
	keyfactor.QuestionMultipleChoice: {
		Type:            keyfactor.QuestionMultipleChoice,
		RequiresOptions: true,
	},
	keyfactor.QuestionNumeric: {
		Type:     keyfactor.QuestionNumeric,
		Grouped:  true,
		UnitHint: "numeric questions usually declare a unit",
	},
	keyfactor.QuestionDiscrete: {
		Type:     keyfactor.QuestionDiscrete,
		Grouped:  true,
		UnitHint: "discrete questions usually declare a unit",
	},
	keyfactor.QuestionDate: {
		Type:    keyfactor.QuestionDate,
		Grouped: true,
	},
}

// ContractForType returns the contract for a question type, if it exists.
func ContractForType(t keyfactor.QuestionType) (Contract, bool) {
	contract, ok := questionContracts[t]
	return contract, ok
}
