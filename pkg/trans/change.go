package trans

// ChangeAction identifies what a recorded change did. The numeric codes
// are stored in the changes table and referenced by search filters.
type ChangeAction int

const (
	ActionUpdate        ChangeAction = 0
	ActionComplete      ChangeAction = 1
	ActionChange        ChangeAction = 2
	ActionComment       ChangeAction = 3
	ActionSuggestion    ChangeAction = 4
	ActionNew           ChangeAction = 5
	ActionAuto          ChangeAction = 6
	ActionAccept        ChangeAction = 7
	ActionRevert        ChangeAction = 8
	ActionUpload        ChangeAction = 9
	ActionNewSource     ChangeAction = 13
	ActionLock          ChangeAction = 14
	ActionUnlock        ChangeAction = 15
	ActionSourceChange  ChangeAction = 20
	ActionNewUnit       ChangeAction = 21
	ActionMassState     ChangeAction = 22
	ActionApprove       ChangeAction = 24
	ActionMarkedEdit    ChangeAction = 25
	ActionExplanation   ChangeAction = 26
	ActionStringRemove  ChangeAction = 27
	ActionEnforcedCheck ChangeAction = 28
)

// ContentActions lists the actions that modify translation content, as
// opposed to metadata-only changes such as comments or locking. Search
// filters on "changed" restrict to these.
func ContentActions() []int64 {
	return []int64{
		int64(ActionChange),
		int64(ActionNew),
		int64(ActionAuto),
		int64(ActionAccept),
		int64(ActionRevert),
		int64(ActionUpload),
		int64(ActionNewUnit),
		int64(ActionMassState),
		int64(ActionApprove),
		int64(ActionMarkedEdit),
		int64(ActionSourceChange),
		int64(ActionStringRemove),
	}
}
